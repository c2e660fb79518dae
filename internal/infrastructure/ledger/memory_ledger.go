package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// MemoryLedger implements recovery.Ledger with in-process maps.
// This is suitable for single-instance deployments and testing; state is lost
// on restart.
type MemoryLedger struct {
	mu        sync.RWMutex
	pending   map[string]recovery.PendingCheckout
	processed map[recovery.ProcessedKind]map[string]struct{}
	locks     map[string]memoryLock

	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type memoryLock struct {
	owner     string
	expiresAt time.Time
}

// NewMemoryLedger creates a new in-memory ledger.
// It starts a background goroutine that purges expired locks.
func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{
		pending:   make(map[string]recovery.PendingCheckout),
		processed: make(map[recovery.ProcessedKind]map[string]struct{}),
		locks:     make(map[string]memoryLock),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// Upsert implements recovery.PendingCheckoutStore
func (l *MemoryLedger) Upsert(ctx context.Context, checkout *recovery.Checkout, at time.Time) error {
	if checkout.CartToken == "" {
		return ErrEmptyCartToken
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending[checkout.CartToken] = recovery.PendingCheckout{
		CartToken: checkout.CartToken,
		Checkout:  *checkout,
		UpdatedAt: at,
	}
	return nil
}

// DrainDue implements recovery.PendingCheckoutStore
func (l *MemoryLedger) DrainDue(ctx context.Context, threshold time.Duration, now time.Time) ([]recovery.PendingCheckout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var due []recovery.PendingCheckout
	for token, entry := range l.pending {
		if now.Sub(entry.UpdatedAt) >= threshold {
			due = append(due, entry)
			delete(l.pending, token)
		}
	}
	return due, nil
}

// Restore implements recovery.PendingCheckoutStore
func (l *MemoryLedger) Restore(ctx context.Context, entry recovery.PendingCheckout) error {
	if entry.CartToken == "" {
		return ErrEmptyCartToken
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.pending[entry.CartToken]; ok && !current.UpdatedAt.Before(entry.UpdatedAt) {
		return nil
	}
	l.pending[entry.CartToken] = entry
	return nil
}

// Contains implements recovery.ProcessedSet
func (l *MemoryLedger) Contains(ctx context.Context, kind recovery.ProcessedKind, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.processed[kind][id]
	return ok, nil
}

// Add implements recovery.ProcessedSet
func (l *MemoryLedger) Add(ctx context.Context, kind recovery.ProcessedKind, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.processed[kind]
	if !ok {
		set = make(map[string]struct{})
		l.processed[kind] = set
	}
	set[id] = struct{}{}
	return nil
}

// TryAcquire implements recovery.LockManager
func (l *MemoryLedger) TryAcquire(ctx context.Context, resourceID, owner string, ttl time.Duration) (bool, error) {
	if resourceID == "" {
		return false, ErrEmptyID
	}
	if owner == "" {
		return false, ErrEmptyOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lock, held := l.locks[resourceID]; held && now.Before(lock.expiresAt) {
		return false, nil
	}
	l.locks[resourceID] = memoryLock{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release implements recovery.LockManager
func (l *MemoryLedger) Release(ctx context.Context, resourceID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lock, held := l.locks[resourceID]; held && lock.owner == owner {
		delete(l.locks, resourceID)
	}
	return nil
}

// Ping implements recovery.Ledger
func (l *MemoryLedger) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Safe to call multiple times.
func (l *MemoryLedger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

// PendingCount returns the number of debounced checkouts (for testing/monitoring)
func (l *MemoryLedger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// cleanupLoop periodically removes expired locks
func (l *MemoryLedger) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.purgeExpiredLocks()
		}
	}
}

func (l *MemoryLedger) purgeExpiredLocks() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, lock := range l.locks {
		if !now.Before(lock.expiresAt) {
			delete(l.locks, id)
		}
	}
}

// Ensure MemoryLedger implements recovery.Ledger
var _ recovery.Ledger = (*MemoryLedger)(nil)
