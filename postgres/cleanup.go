package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/velmie/outbox"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "outbox:cleanup:"
)

// CleanupResult reports how many rows were removed by a cleanup pass.
type CleanupResult struct {
	Completed  int64
	DeadLetter int64
}

// CleanupMaintainerConfig controls periodic retention deletion of terminal
// rows. This is distinct from partition maintenance, which this package
// intentionally does not implement: partition rotation is delegated to
// PostgreSQL's native declarative partitioning, operated outside the
// application. Cleanup here only issues bounded DELETEs against a
// non-partitioned (or already-rotated-out) table.
type CleanupMaintainerConfig struct {
	// Retention removes COMPLETED/DEAD_LETTER rows older than now-retention.
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludeDeadLetter also deletes DEAD_LETTER rows, keyed on created_at
	// since they have no processed_at. Off by default: dead letters
	// usually warrant operator review before deletion.
	IncludeDeadLetter bool
	// LockName is the advisory lock name. Defaults to outbox:cleanup:<table>.
	LockName string
	Clock    outbox.Clock
	Logger   outbox.Logger
}

// CleanupMaintainer periodically deletes terminal rows older than a
// configured retention window from a non-partitioned table.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// NewCleanupMaintainer creates a CleanupMaintainer with defaults applied.
func NewCleanupMaintainer(store *Store, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if store == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("outbox postgres: cleanup retention must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = outbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = outbox.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + store.table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old rows until ctx is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass, skipping it if another process
// already holds the maintainer's advisory lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	locked, err := m.store.TryLock(ctx, m.cfg.LockName)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("outbox cleanup: lock held by another process")

		return CleanupResult{}, nil
	}
	defer func() {
		if err := m.store.Unlock(ctx, m.cfg.LockName); err != nil {
			m.cfg.Logger.Warn("outbox cleanup: release lock failed", "err", err)
		}
	}()

	before := m.cfg.Clock.Now().Add(-m.cfg.Retention)

	completed, err := m.deleteBefore(ctx, "COMPLETED", "processed_at", before, m.cfg.Limit)
	if err != nil {
		return CleanupResult{}, err
	}

	var dead int64
	remaining := m.cfg.Limit - int(completed)
	if m.cfg.IncludeDeadLetter && remaining > 0 {
		dead, err = m.deleteBefore(ctx, "DEAD_LETTER", "created_at", before, remaining)
		if err != nil {
			return CleanupResult{}, err
		}
	}

	return CleanupResult{Completed: completed, DeadLetter: dead}, nil
}

func (m *CleanupMaintainer) deleteBefore(ctx context.Context, status, tsColumn string, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	query := fmt.Sprintf(
		`DELETE FROM %[1]s WHERE id IN (
			SELECT id FROM %[1]s WHERE status = $1 AND %[2]s IS NOT NULL AND %[2]s <= $2 ORDER BY id LIMIT $3
		)`,
		m.store.table, tsColumn,
	)

	result, err := m.store.db.ExecContext(ctx, query, status, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: cleanup delete failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: cleanup rows failed: %w", err)
	}

	return affected, nil
}
