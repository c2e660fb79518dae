package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// drainScript atomically pops every pending checkout whose score (last update,
// unix millis) is at or below ARGV[1].
var drainScript = redis.NewScript(`
local tokens = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local out = {}
for _, token in ipairs(tokens) do
  local payload = redis.call('HGET', KEYS[2], token)
  redis.call('ZREM', KEYS[1], token)
  redis.call('HDEL', KEYS[2], token)
  if payload then
    table.insert(out, payload)
  end
end
return out
`)

// restoreScript writes a pending checkout back only if the token is absent or
// its stored score is older than ARGV[2].
var restoreScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if current and tonumber(current) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// releaseScript deletes a lock only while it still carries the caller's owner token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLedger implements recovery.Ledger on Redis.
// This is suitable for deployments where several instances share the ledger.
//
// Layout (all keys under keyPrefix):
//
//	pending:data          HASH  cart token -> JSON snapshot
//	pending:due           ZSET  cart token scored by last update (unix ms)
//	processed:<kind>      SET   processed IDs
//	lock:<resource>       STRING owner token with expiry
type RedisLedger struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type redisPendingEntry struct {
	Checkout  recovery.Checkout `json:"checkout"`
	UpdatedAt int64             `json:"updated_at"`
}

// NewRedisLedger creates a new Redis-backed ledger
func NewRedisLedger(cfg RedisConfig) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLedgerWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisLedgerWithClient creates a ledger with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisLedgerWithClient(client *redis.Client, keyPrefix string) *RedisLedger {
	if keyPrefix == "" {
		keyPrefix = "cartsync:"
	}
	return &RedisLedger{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (l *RedisLedger) pendingDataKey() string { return l.keyPrefix + "pending:data" }
func (l *RedisLedger) pendingDueKey() string  { return l.keyPrefix + "pending:due" }
func (l *RedisLedger) processedKey(kind recovery.ProcessedKind) string {
	return l.keyPrefix + "processed:" + string(kind)
}
func (l *RedisLedger) lockKey(id string) string { return l.keyPrefix + "lock:" + id }

// Upsert implements recovery.PendingCheckoutStore
func (l *RedisLedger) Upsert(ctx context.Context, checkout *recovery.Checkout, at time.Time) error {
	if checkout.CartToken == "" {
		return ErrEmptyCartToken
	}

	payload, err := json.Marshal(redisPendingEntry{Checkout: *checkout, UpdatedAt: at.UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to encode checkout: %w", err)
	}

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.pendingDataKey(), checkout.CartToken, payload)
		pipe.ZAdd(ctx, l.pendingDueKey(), redis.Z{Score: float64(at.UnixMilli()), Member: checkout.CartToken})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert pending checkout: %w", err)
	}
	return nil
}

// DrainDue implements recovery.PendingCheckoutStore
func (l *RedisLedger) DrainDue(ctx context.Context, threshold time.Duration, now time.Time) ([]recovery.PendingCheckout, error) {
	cutoff := now.Add(-threshold).UnixMilli()

	payloads, err := drainScript.Run(ctx, l.client,
		[]string{l.pendingDueKey(), l.pendingDataKey()},
		strconv.FormatInt(cutoff, 10),
	).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to drain pending checkouts: %w", err)
	}

	due := make([]recovery.PendingCheckout, 0, len(payloads))
	for _, p := range payloads {
		var entry redisPendingEntry
		if err := json.Unmarshal([]byte(p), &entry); err != nil {
			continue // corrupt snapshot, already removed
		}
		due = append(due, recovery.PendingCheckout{
			CartToken: entry.Checkout.CartToken,
			Checkout:  entry.Checkout,
			UpdatedAt: time.UnixMilli(entry.UpdatedAt),
		})
	}
	return due, nil
}

// Restore implements recovery.PendingCheckoutStore
func (l *RedisLedger) Restore(ctx context.Context, entry recovery.PendingCheckout) error {
	if entry.CartToken == "" {
		return ErrEmptyCartToken
	}

	checkout := entry.Checkout
	checkout.CartToken = entry.CartToken
	payload, err := json.Marshal(redisPendingEntry{Checkout: checkout, UpdatedAt: entry.UpdatedAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to encode checkout: %w", err)
	}

	err = restoreScript.Run(ctx, l.client,
		[]string{l.pendingDueKey(), l.pendingDataKey()},
		entry.CartToken,
		strconv.FormatInt(entry.UpdatedAt.UnixMilli(), 10),
		payload,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to restore pending checkout: %w", err)
	}
	return nil
}

// Contains implements recovery.ProcessedSet
func (l *RedisLedger) Contains(ctx context.Context, kind recovery.ProcessedKind, id string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.processedKey(kind), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed %s: %w", kind, err)
	}
	return ok, nil
}

// Add implements recovery.ProcessedSet
func (l *RedisLedger) Add(ctx context.Context, kind recovery.ProcessedKind, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := l.client.SAdd(ctx, l.processedKey(kind), id).Err(); err != nil {
		return fmt.Errorf("failed to record processed %s: %w", kind, err)
	}
	return nil
}

// TryAcquire implements recovery.LockManager.
// Uses SET NX with an expiry so acquisition and TTL are a single atomic step.
func (l *RedisLedger) TryAcquire(ctx context.Context, resourceID, owner string, ttl time.Duration) (bool, error) {
	if resourceID == "" {
		return false, ErrEmptyID
	}
	if owner == "" {
		return false, ErrEmptyOwner
	}
	ok, err := l.client.SetNX(ctx, l.lockKey(resourceID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

// Release implements recovery.LockManager
func (l *RedisLedger) Release(ctx context.Context, resourceID, owner string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.lockKey(resourceID)}, owner).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Ping implements recovery.Ledger
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (l *RedisLedger) GetClient() *redis.Client {
	return l.client
}

// Ensure RedisLedger implements recovery.Ledger
var _ recovery.Ledger = (*RedisLedger)(nil)
