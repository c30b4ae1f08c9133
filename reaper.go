package outbox

import (
	"context"
	"fmt"
	"time"
)

const defaultReaperInterval = 10 * time.Second

// ReaperConfig controls periodic recovery of abandoned leases.
type ReaperConfig struct {
	// Interval between sweeps. Must satisfy Interval <= LeaseSeconds/2 so
	// abandoned events are recoverable within one lease duration.
	Interval time.Duration
	// LeaseSeconds is only used to validate Interval; it is not itself
	// enforced here (RecoverStaleEvents relies on the Repository's own
	// locked_until comparison against now()).
	LeaseSeconds int
	// LockName, if the Repository also implements AdvisoryLocker, scopes a
	// named advisory lock so only one process's reaper runs a sweep at a
	// time. Defaults to "outbox:reaper".
	LockName string
	Logger   Logger
	Metrics  Metrics
}

func (c ReaperConfig) withDefaults() (ReaperConfig, error) {
	if c.Interval <= 0 {
		c.Interval = defaultReaperInterval
	}
	if c.LeaseSeconds > 0 && c.Interval > time.Duration(c.LeaseSeconds)*time.Second/2 {
		return c, ErrReaperTooSlow
	}
	if c.LockName == "" {
		c.LockName = "outbox:reaper"
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c, nil
}

// Reaper periodically returns leased-but-abandoned events to PENDING. It
// never increments retry_count: reaping is neither a success nor an
// application-level failure, only evidence of a worker crash or partition.
type Reaper struct {
	repo Repository
	cfg  ReaperConfig
}

// NewReaper constructs a Reaper against repo with the given config.
func NewReaper(repo Repository, cfg ReaperConfig) (*Reaper, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	return &Reaper{repo: repo, cfg: cfg}, nil
}

// Run sweeps on Interval until ctx is canceled.
func (m *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox reaper: sweep failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox reaper: sweep failed", "err", err)
			}
		}
	}
}

// Ensure executes a single reaper sweep. If the Repository implements
// AdvisoryLocker, the sweep is skipped when another process already holds
// the lock, so multiple relay processes may each run an in-process reaper
// without duplicating recovery work.
func (m *Reaper) Ensure(ctx context.Context) (int, error) {
	locker, hasLocker := m.repo.(AdvisoryLocker)
	if hasLocker {
		locked, err := locker.TryLock(ctx, m.cfg.LockName)
		if err != nil {
			return 0, fmt.Errorf("outbox reaper: acquire lock failed: %w", err)
		}
		if !locked {
			m.cfg.Logger.Debug("outbox reaper: lock held by another process")

			return 0, nil
		}
		defer func() {
			if err := locker.Unlock(ctx, m.cfg.LockName); err != nil {
				m.cfg.Logger.Warn("outbox reaper: release lock failed", "err", err)
			}
		}()
	}

	count, err := m.repo.RecoverStaleEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox reaper: recover failed: %w", err)
	}
	if count > 0 {
		m.cfg.Metrics.AddReaped(count)
		m.cfg.Logger.Warn("outbox reaper: recovered abandoned leases", "count", count)
	}

	return count, nil
}
