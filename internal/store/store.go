// Package store is the persistence boundary for schedule tasks.
//
// Driver values:
//   - "memory": in-process map (default; good for tests and ephemeral runs)
//   - "sqlite": SQLite database file (optional build tag)
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chimed/internal/task"
	logx "chimed/pkg/logx"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrVersionConflict signals a stale read-modify-write; the caller should
	// re-read and retry.
	ErrVersionConflict = errors.New("task version conflict")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API the scheduler depends on.
//
// Save is an optimistic upsert: it rejects writes whose Version does not
// match the stored row and bumps Version on success (mirrored back into the
// passed task).
type Store interface {
	Save(ctx context.Context, t *task.ScheduleTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*task.ScheduleTask, error)
	// FindDue returns enabled PENDING tasks whose next execution time or
	// snooze deadline has arrived.
	FindDue(ctx context.Context, now time.Time) ([]*task.ScheduleTask, error)
	List(ctx context.Context) ([]*task.ScheduleTask, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory", "mem":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
