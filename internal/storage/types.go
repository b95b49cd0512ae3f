package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotInteger = errors.New("value is not an integer")

// Store is the minimal counting-store API used by the gates and the resolver.
//
// Every method is a single atomic operation on the backend. Callers never hold
// locks across calls.
type Store interface {
	// Incr increments the integer at key, creating it at 1 when absent or expired.
	// An existing expiry is kept.
	Incr(ctx context.Context, key string) (int64, error)
	// SetEx sets key to value. ttl <= 0 means the key never expires.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// CountPrefix counts live keys starting with prefix.
	CountPrefix(ctx context.Context, prefix string) (int, error)
	// DeletePrefix removes all keys starting with prefix and reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// Sweeper is implemented by backends without native expiry.
type Sweeper interface {
	PruneExpired(ctx context.Context) (int, error)
}

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map (default)
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//   - "redis": Redis server
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	BusyTimeout time.Duration // sqlite only; 0 means default

	Addr      string // redis
	Password  string
	DB        int
	KeyPrefix string

	// PruneSchedule is a cron spec for expiry sweeps (file, sqlite).
	// Empty disables scheduled sweeps.
	PruneSchedule string
}
