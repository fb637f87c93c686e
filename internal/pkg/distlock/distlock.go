// Package distlock provides per-tenant exclusion for sync runs across
// processes, backed by Redis when available and PostgreSQL otherwise.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing a lock that is not owned.
var ErrNotHeld = errors.New("distlock: lock not held")

// DistLock is the interface for distributed locking.
// A lock value is owned by one caller at a time; create one per sync run.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
	// Extend renews the lock for another full TTL while we still own it.
	Extend(ctx context.Context) error
}

// Factory mints locks keyed by tenant.
type Factory struct {
	redis  *redis.Client
	db     *sql.DB
	ttl    time.Duration
	prefix string
}

// NewFactory returns a Factory preferring Redis over PostgreSQL advisory
// locks. It returns nil when neither backend is configured, which callers
// treat as "locking disabled".
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	if redisClient == nil && db == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Factory{redis: redisClient, db: db, ttl: ttl, prefix: "mautic-sync:tenant"}
}

// Heartbeat is how often a holder should call Extend: a third of the TTL,
// so two missed renewals still leave the lock in place.
func (f *Factory) Heartbeat() time.Duration {
	return f.ttl / 3
}

// ForTenant returns a fresh lock for the given tenant id.
func (f *Factory) ForTenant(tenantID string) DistLock {
	return f.NewLock(f.prefix + ":" + tenantID)
}

// NewLock returns a lock for an arbitrary key using the factory backend.
func (f *Factory) NewLock(key string) DistLock {
	if f.redis != nil {
		return NewRedisLock(f.redis, key, f.ttl)
	}
	return NewPGAdvisoryLock(f.db, key)
}

// PGAdvisoryLock implements DistLock using pg_try_advisory_lock. Advisory
// locks are session-scoped, so the lock pins a single pooled connection
// between Acquire and Release. The lock drops if that connection dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: reserve connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("distlock: try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Extend reports whether the lock is still held. Advisory locks live as long
// as the pinned session and have no TTL to renew.
func (l *PGAdvisoryLock) Extend(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	return nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("distlock: advisory unlock: %w", err)
	}
	return nil
}
