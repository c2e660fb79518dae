package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartsync/backend/internal/domain/recovery"
)

func newTestRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLedgerWithClient(client, "test:")
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestRedisLedger_Contract(t *testing.T) {
	runLedgerContract(t, func(t *testing.T) (recovery.Ledger, func(time.Duration)) {
		l, mr := newTestRedisLedger(t)
		return l, mr.FastForward
	})
}

func TestRedisLedger_LockExpires(t *testing.T) {
	l, mr := newTestRedisLedger(t)
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "pay_1", "owner_a", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:lock:pay_1"))

	mr.FastForward(31 * time.Minute)

	ok, err = l.TryAcquire(ctx, "pay_1", "owner_b", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLedger_KeyLayout(t *testing.T) {
	l, mr := newTestRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Upsert(ctx, &recovery.Checkout{CartToken: "cart_1"}, time.UnixMilli(1_700_000_000_000)))
	require.NoError(t, l.Add(ctx, recovery.ProcessedFulfillments, "f_1"))

	assert.True(t, mr.Exists("test:pending:data"))
	score, err := mr.ZScore("test:pending:due", "cart_1")
	require.NoError(t, err)
	assert.Equal(t, float64(1_700_000_000_000), score)

	members, err := mr.Members("test:processed:fulfillment")
	require.NoError(t, err)
	assert.Equal(t, []string{"f_1"}, members)
}

func TestRedisLedger_LockStoresOwner(t *testing.T) {
	l, mr := newTestRedisLedger(t)
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "pay_1", "owner_a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	value, err := mr.Get("test:lock:pay_1")
	require.NoError(t, err)
	assert.Equal(t, "owner_a", value)

	require.NoError(t, l.Release(ctx, "pay_1", "owner_b"))
	assert.True(t, mr.Exists("test:lock:pay_1"))

	require.NoError(t, l.Release(ctx, "pay_1", "owner_a"))
	assert.False(t, mr.Exists("test:lock:pay_1"))
}

func TestRedisLedger_RestoreComparesScore(t *testing.T) {
	l, mr := newTestRedisLedger(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name      string
		restoreAt time.Time
		wantScore float64
	}{
		{name: "stale entry is ignored", restoreAt: at.Add(-time.Minute), wantScore: float64(at.UnixMilli())},
		{name: "equal entry is ignored", restoreAt: at, wantScore: float64(at.UnixMilli())},
		{name: "newer entry replaces", restoreAt: at.Add(time.Minute), wantScore: float64(at.Add(time.Minute).UnixMilli())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr.FlushAll()
			require.NoError(t, l.Upsert(ctx, &recovery.Checkout{CartToken: "cart_1"}, at))

			require.NoError(t, l.Restore(ctx, recovery.PendingCheckout{
				CartToken: "cart_1",
				Checkout:  recovery.Checkout{CartToken: "cart_1"},
				UpdatedAt: tt.restoreAt,
			}))

			score, err := mr.ZScore("test:pending:due", "cart_1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, score)
		})
	}
}

func TestRedisLedger_DefaultKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLedgerWithClient(client, "")
	defer l.Close()

	require.NoError(t, l.Add(context.Background(), recovery.ProcessedOrders, "1"))
	assert.True(t, mr.Exists("cartsync:processed:order"))
}

func TestRedisLedger_UnavailableServer(t *testing.T) {
	l, mr := newTestRedisLedger(t)
	mr.Close()

	_, err := l.TryAcquire(context.Background(), "pay_1", "owner", time.Minute)
	assert.Error(t, err)
	assert.Error(t, l.Ping(context.Background()))
}
