package outbox

import "context"

// LimitAction controls what a BacklogLimiter does when the configured
// maximum is exceeded.
type LimitAction int

const (
	// LimitThrow rejects the insert with ErrBacklogExceeded.
	LimitThrow LimitAction = iota
	// LimitWarn logs a warning and permits the insert.
	LimitWarn
	// LimitDrop logs a warning, permits the insert to proceed at the
	// caller's discretion, but signals "not enqueued" via ErrNotEnqueued.
	LimitDrop
)

const backlogHealthThresholdPercent = 80

// BacklogLimiter enforces ingress backpressure against unbounded pending
// growth by comparing PendingCount to a configured maximum. It is consulted
// by producers before inserting, not by the relay.
type BacklogLimiter struct {
	repo   Repository
	max    int
	action LimitAction
	logger Logger
}

// NewBacklogLimiter constructs a BacklogLimiter. max <= 0 disables the limit.
func NewBacklogLimiter(repo Repository, max int, action LimitAction, logger Logger) *BacklogLimiter {
	if logger == nil {
		logger = NopLogger{}
	}

	return &BacklogLimiter{repo: repo, max: max, action: action, logger: logger}
}

// Check compares the current pending count against the configured maximum
// and returns an error per the configured LimitAction when it is exceeded.
func (l *BacklogLimiter) Check(ctx context.Context) error {
	if l.max <= 0 {
		return nil
	}

	pending, err := l.repo.PendingCount(ctx)
	if err != nil {
		return err
	}
	if pending < l.max {
		return nil
	}

	switch l.action {
	case LimitWarn:
		l.logger.Warn("outbox backlog limiter: pending backlog at or above maximum", "pending", pending, "max", l.max)

		return nil
	case LimitDrop:
		l.logger.Warn("outbox backlog limiter: dropping insert, backlog at or above maximum", "pending", pending, "max", l.max)

		return ErrNotEnqueued
	default:
		return ErrBacklogExceeded
	}
}

// UtilizationPercent returns 100 * pending / max, or 0 if no maximum is configured.
func (l *BacklogLimiter) UtilizationPercent(ctx context.Context) (float64, error) {
	if l.max <= 0 {
		return 0, nil
	}

	pending, err := l.repo.PendingCount(ctx)
	if err != nil {
		return 0, err
	}

	return 100 * float64(pending) / float64(l.max), nil
}

// Healthy reports whether utilization is below the health threshold (80%).
func (l *BacklogLimiter) Healthy(ctx context.Context) (bool, error) {
	pct, err := l.UtilizationPercent(ctx)
	if err != nil {
		return false, err
	}

	return pct < backlogHealthThresholdPercent, nil
}
