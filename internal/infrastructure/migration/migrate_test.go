package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"20250602000000_b.up.sql",
		"20250602000000_b.down.sql",
		"20250601000000_a.up.sql",
		"20250601000000_a.down.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.up.sql"), 0o755))

	names, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250601000000_a", "20250602000000_b"}, names)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	names, err := ListMigrations(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFindPath_LocatesRepositoryMigrations(t *testing.T) {
	path := FindPath()
	require.NotEmpty(t, path)

	names, err := ListMigrations(path)
	require.NoError(t, err)
	assert.Contains(t, names, "20250601000000_create_ledger_tables")
	assert.Contains(t, names, "20250615000000_add_lock_owner")
}

func TestIntArg(t *testing.T) {
	_, err := intArg(nil)
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = intArg([]string{"x"})
	assert.Error(t, err)

	n, err := intArg([]string{"-2"})
	require.NoError(t, err)
	assert.Equal(t, -2, n)
}

func TestRun_UnknownCommand(t *testing.T) {
	m := &Migrator{logger: zap.NewNop()}
	err := m.Run("explode", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	err = m.Run("step", nil)
	assert.ErrorIs(t, err, ErrMissingArgument)
}
