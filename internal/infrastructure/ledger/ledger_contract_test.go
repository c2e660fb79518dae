package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// testClock is a manually advanced time source shared by a ledger and its test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ledgerFactory builds a fresh ledger and returns a function that moves the
// ledger's lock clock forward
type ledgerFactory func(t *testing.T) (recovery.Ledger, func(time.Duration))

// runLedgerContract exercises the behavior every ledger backend must share
func runLedgerContract(t *testing.T, newLedger ledgerFactory) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	delay := 60 * time.Minute

	checkout := func(token, total string) *recovery.Checkout {
		return &recovery.Checkout{
			CartToken:  token,
			Token:      "chk_" + token,
			Email:      token + "@example.com",
			TotalPrice: decimal.RequireFromString(total),
		}
	}

	t.Run("upserts coalesce into the last snapshot", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		require.NoError(t, l.Upsert(ctx, checkout("cart_1", "100"), base))
		require.NoError(t, l.Upsert(ctx, checkout("cart_1", "200"), base.Add(time.Minute)))
		require.NoError(t, l.Upsert(ctx, checkout("cart_1", "300"), base.Add(2*time.Minute)))

		due, err := l.DrainDue(ctx, delay, base.Add(2*time.Minute+delay))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "cart_1", due[0].CartToken)
		assert.True(t, due[0].Checkout.TotalPrice.Equal(decimal.NewFromInt(300)))
		assert.True(t, due[0].UpdatedAt.Equal(base.Add(2*time.Minute)))
	})

	t.Run("entries are not due before the delay elapses", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		require.NoError(t, l.Upsert(ctx, checkout("cart_2", "10"), base))

		due, err := l.DrainDue(ctx, delay, base.Add(delay-time.Second))
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = l.DrainDue(ctx, delay, base.Add(delay))
		require.NoError(t, err)
		require.Len(t, due, 1)

		due, err = l.DrainDue(ctx, delay, base.Add(2*delay))
		require.NoError(t, err)
		assert.Empty(t, due, "drained entries are removed")
	})

	t.Run("a late update postpones the entry", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		require.NoError(t, l.Upsert(ctx, checkout("cart_3", "10"), base))
		require.NoError(t, l.Upsert(ctx, checkout("cart_3", "10"), base.Add(30*time.Minute)))

		due, err := l.DrainDue(ctx, delay, base.Add(delay))
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("restore keeps a fresher snapshot", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		require.NoError(t, l.Upsert(ctx, checkout("cart_r", "10"), base))
		drained, err := l.DrainDue(ctx, delay, base.Add(delay))
		require.NoError(t, err)
		require.Len(t, drained, 1)

		require.NoError(t, l.Upsert(ctx, checkout("cart_r", "99"), base.Add(delay)))
		require.NoError(t, l.Restore(ctx, drained[0]))

		due, err := l.DrainDue(ctx, delay, base.Add(2*delay))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.True(t, due[0].Checkout.TotalPrice.Equal(decimal.NewFromInt(99)))
		assert.True(t, due[0].UpdatedAt.Equal(base.Add(delay)))
	})

	t.Run("restore puts back an absent or older entry", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		tests := []struct {
			name  string
			seed  *time.Time
			entry time.Time
		}{
			{name: "absent", entry: base},
			{name: "older stored", seed: &base, entry: base.Add(time.Minute)},
		}

		for i, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				token := fmt.Sprintf("cart_p%d", i)
				if tt.seed != nil {
					require.NoError(t, l.Upsert(ctx, checkout(token, "1"), *tt.seed))
				}

				require.NoError(t, l.Restore(ctx, recovery.PendingCheckout{
					CartToken: token,
					Checkout:  *checkout(token, "5"),
					UpdatedAt: tt.entry,
				}))

				due, err := l.DrainDue(ctx, delay, tt.entry.Add(delay))
				require.NoError(t, err)
				require.Len(t, due, 1)
				assert.Equal(t, token, due[0].CartToken)
				assert.True(t, due[0].Checkout.TotalPrice.Equal(decimal.NewFromInt(5)))
				assert.True(t, due[0].UpdatedAt.Equal(tt.entry))
			})
		}
	})

	t.Run("rejects checkouts without cart token", func(t *testing.T) {
		l, _ := newLedger(t)
		err := l.Upsert(context.Background(), checkout("", "1"), base)
		assert.ErrorIs(t, err, ErrEmptyCartToken)

		err = l.Restore(context.Background(), recovery.PendingCheckout{UpdatedAt: base})
		assert.ErrorIs(t, err, ErrEmptyCartToken)
	})

	t.Run("concurrent drains return each entry once", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		const n = 20
		for i := 0; i < n; i++ {
			require.NoError(t, l.Upsert(ctx, checkout(fmt.Sprintf("cart_c%d", i), "1"), base))
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]int)
			wg   sync.WaitGroup
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				due, err := l.DrainDue(ctx, delay, base.Add(delay))
				assert.NoError(t, err)
				mu.Lock()
				for _, d := range due {
					seen[d.CartToken]++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, seen, n)
		for token, count := range seen {
			assert.Equal(t, 1, count, token)
		}
	})

	t.Run("processed sets are per kind and idempotent", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		ok, err := l.Contains(ctx, recovery.ProcessedPayments, "pay_1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, l.Add(ctx, recovery.ProcessedPayments, "pay_1"))
		require.NoError(t, l.Add(ctx, recovery.ProcessedPayments, "pay_1"))

		ok, err = l.Contains(ctx, recovery.ProcessedPayments, "pay_1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Contains(ctx, recovery.ProcessedOrders, "pay_1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lock acquisition is exclusive until release", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		ok, err := l.TryAcquire(ctx, "pay_9", "worker_a", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.TryAcquire(ctx, "pay_9", "worker_b", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, l.Release(ctx, "pay_9", "worker_b"), "a non-holder cannot release")
		ok, err = l.TryAcquire(ctx, "pay_9", "worker_b", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, l.Release(ctx, "pay_9", "worker_a"))
		require.NoError(t, l.Release(ctx, "pay_9", "worker_a"), "releasing twice is a no-op")

		ok, err = l.TryAcquire(ctx, "pay_9", "worker_b", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("late release does not free a re-acquired lock", func(t *testing.T) {
		l, advance := newLedger(t)
		ctx := context.Background()

		ok, err := l.TryAcquire(ctx, "pay_1", "first", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		advance(2 * time.Minute)

		ok, err = l.TryAcquire(ctx, "pay_1", "second", time.Minute)
		require.NoError(t, err)
		require.True(t, ok, "expired lock is taken over")

		require.NoError(t, l.Release(ctx, "pay_1", "first"))

		ok, err = l.TryAcquire(ctx, "pay_1", "third", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "second holder keeps the lock")

		require.NoError(t, l.Release(ctx, "pay_1", "second"))
		ok, err = l.TryAcquire(ctx, "pay_1", "third", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects locks without owner", func(t *testing.T) {
		l, _ := newLedger(t)
		_, err := l.TryAcquire(context.Background(), "pay_1", "", time.Minute)
		assert.ErrorIs(t, err, ErrEmptyOwner)
	})

	t.Run("concurrent acquirers get exactly one winner", func(t *testing.T) {
		l, _ := newLedger(t)
		ctx := context.Background()

		var (
			winners atomic.Int32
			wg      sync.WaitGroup
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := l.TryAcquire(ctx, "pay_race", fmt.Sprintf("worker_%d", i), time.Hour)
				assert.NoError(t, err)
				if ok {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("ping succeeds", func(t *testing.T) {
		l, _ := newLedger(t)
		assert.NoError(t, l.Ping(context.Background()))
	})
}
