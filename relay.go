package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Relay drives the claim -> process (with heartbeat) -> finalize loop for a
// single process. It owns one fencing token for its lifetime.
type Relay struct {
	repo      Repository
	publisher Publisher
	cfg       RelayConfig
	lockToken int64

	metricsMu sync.Mutex
	metricsAt time.Time
}

// NewRelay constructs a Relay with defaults and optional settings applied.
func NewRelay(repo Repository, publisher Publisher, opts ...RelayOption) (*Relay, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	token, err := cfg.LockToken.New()
	if err != nil {
		return nil, fmt.Errorf("outbox: generate lock token: %w", err)
	}

	if cfg.Concurrency > 1 {
		cfg.Logger.Warn("outbox relay concurrency > 1: global event ordering is not preserved", "concurrency", cfg.Concurrency)
	}

	return &Relay{repo: repo, publisher: publisher, cfg: cfg, lockToken: token}, nil
}

// LockToken returns the fencing token this relay claims events under.
func (r *Relay) LockToken() int64 {
	return r.lockToken
}

// Run drives the poll loop until ctx is canceled. On cancellation it stops
// claiming new batches immediately; any batch already claimed keeps running
// against an independent work context so heartbeats and the outstanding
// publish call may finish, up to ShutdownGrace, after which the work context
// is canceled and any still-unfinalized events are abandoned to the Reaper.
func (r *Relay) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	go func() {
		<-ctx.Done()
		r.cfg.Logger.Info("outbox relay: shutdown requested", "grace", r.cfg.ShutdownGrace)
		timer := time.NewTimer(r.cfg.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-workCtx.Done():
		}
		cancelWork()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		full, err := r.ProcessOnce(workCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.cfg.Logger.Error("outbox relay: claim batch failed", "err", err)
			r.maybeRecordGauges(ctx)
			if sleepErr := r.sleep(ctx, r.cfg.PollInterval); sleepErr != nil {
				return nil
			}

			continue
		}

		r.maybeRecordGauges(ctx)

		if !full {
			if sleepErr := r.sleep(ctx, r.cfg.PollInterval); sleepErr != nil {
				return nil
			}
		}
	}
}

// ProcessOnce claims and drives a single batch to completion, reporting
// whether the batch was full (a hint that another claim should follow
// immediately without sleeping).
func (r *Relay) ProcessOnce(ctx context.Context) (full bool, err error) {
	events, err := r.repo.ClaimBatch(ctx, r.cfg.BatchSize, r.cfg.LeaseSeconds, r.lockToken)
	if err != nil {
		return false, err
	}
	if len(events) == 0 {
		return false, nil
	}

	start := r.cfg.Clock.Now()
	r.processBatch(ctx, events)
	r.cfg.Metrics.ObserveBatchDuration(r.cfg.Clock.Now().Sub(start))

	r.cfg.Logger.Info("outbox relay: batch processed", "claimed", len(events))

	return len(events) == r.cfg.BatchSize, nil
}

func (r *Relay) processBatch(ctx context.Context, events []Event) {
	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range events {
		event := events[i]
		if event.LockToken != nil && *event.LockToken != r.lockToken {
			// Defensive: ClaimBatch should never hand back a row stamped with
			// a different token. Drop silently, per spec §4.2 tie-breaks.
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if rec := recover(); rec != nil {
					r.cfg.Logger.Error("outbox relay: worker panic", "event_id", event.ID, "panic", rec)
				}
			}()
			r.processEvent(ctx, event)
		}()
	}

	wg.Wait()
}

func (r *Relay) processEvent(ctx context.Context, event Event) {
	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	lost := r.startHeartbeat(heartbeatCtx, event.ID)
	defer stopHeartbeat()

	result, err := r.publisher.Publish(ctx, event)
	stopHeartbeat()

	select {
	case <-lost:
		// Lease was lost mid-flight: the side effect outcome is unknown and
		// unrevocable. Do not mutate the row; abandon it to the reaper or a
		// subsequent claim, per spec §4.2/§7 LeaseLost handling.
		return
	default:
	}

	if err != nil {
		result = PublishResult{Success: false, Retriable: true, Reason: err.Error()}
	}

	if result.Success {
		r.finalizeSuccess(ctx, event)

		return
	}

	r.finalizeFailure(ctx, event, result)
}

// startHeartbeat launches a per-event renewal goroutine that ticks at
// HeartbeatInterval until ctx is canceled or the lease is lost. The returned
// channel is closed the moment RenewLease first reports the lease is lost.
func (r *Relay) startHeartbeat(ctx context.Context, eventID int64) <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := r.repo.RenewLease(ctx, eventID, r.lockToken, r.cfg.LeaseSeconds)
				if err != nil {
					r.cfg.Logger.Warn("outbox relay: renew lease failed", "event_id", eventID, "err", err)

					continue
				}
				if !ok {
					close(lost)

					return
				}
			}
		}
	}()

	return lost
}

func (r *Relay) finalizeSuccess(ctx context.Context, event Event) {
	ok, err := r.repo.MarkCompleted(ctx, event.ID, r.lockToken)
	if err != nil {
		r.cfg.Logger.Error("outbox relay: mark completed failed", "event_id", event.ID, "err", err)

		return
	}
	if !ok {
		return
	}
	r.cfg.Metrics.AddCompleted(1)
}

func (r *Relay) finalizeFailure(ctx context.Context, event Event, result PublishResult) {
	action := classifyResult(event, result)
	if action == FailureDead {
		ok, err := r.repo.MarkDeadLetter(ctx, event.ID, r.lockToken, result.Reason)
		if err != nil {
			r.cfg.Logger.Error("outbox relay: mark dead letter failed", "event_id", event.ID, "err", err)

			return
		}
		if !ok {
			return
		}
		r.cfg.Metrics.AddDead(1)
		r.cfg.Logger.Error("outbox relay: event dead-lettered",
			"event_id", event.ID, "tracking_id", event.TrackingID, "event_type", event.EventType, "last_error", result.Reason)

		return
	}

	visibleAt := r.cfg.Clock.Now().Add(r.cfg.RetryPolicy.Delay(event.RetryCount))
	ok, err := r.repo.MarkFailed(ctx, event.ID, r.lockToken, result.Reason, &visibleAt)
	if err != nil {
		r.cfg.Logger.Error("outbox relay: mark failed failed", "event_id", event.ID, "err", err)

		return
	}
	if !ok {
		return
	}
	r.cfg.Metrics.AddFailed(1)
}

// maybeRecordGauges samples pending/processing/dead-letter/oldest-pending
// (and backlog utilization, if a BacklogLimiter is configured) into the
// Metrics gauges, rate-limited to at most once per MetricsInterval so a busy
// poll loop doesn't hammer the repository with aggregate queries.
func (r *Relay) maybeRecordGauges(ctx context.Context) {
	if r.cfg.MetricsInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.metricsMu.Lock()
	nextAllowed := r.metricsAt.Add(r.cfg.MetricsInterval)
	if !r.metricsAt.IsZero() && now.Before(nextAllowed) {
		r.metricsMu.Unlock()

		return
	}
	r.metricsAt = now
	r.metricsMu.Unlock()

	if pending, err := r.repo.PendingCount(ctx); err != nil {
		r.cfg.Logger.Warn("outbox relay: pending count failed", "err", err)
	} else {
		r.cfg.Metrics.SetPending(pending)
	}

	if processing, err := r.repo.ProcessingCount(ctx); err != nil {
		r.cfg.Logger.Warn("outbox relay: processing count failed", "err", err)
	} else {
		r.cfg.Metrics.SetProcessing(processing)
	}

	if dead, err := r.repo.DeadLetterCount(ctx); err != nil {
		r.cfg.Logger.Warn("outbox relay: dead letter count failed", "err", err)
	} else {
		r.cfg.Metrics.SetDeadLetter(dead)
	}

	if age, err := r.repo.OldestPendingAgeSeconds(ctx); err != nil {
		r.cfg.Logger.Warn("outbox relay: oldest pending age failed", "err", err)
	} else {
		r.cfg.Metrics.SetOldestPendingAge(age)
	}

	if r.cfg.Backlog != nil {
		if pct, err := r.cfg.Backlog.UtilizationPercent(ctx); err != nil {
			r.cfg.Logger.Warn("outbox relay: backlog utilization failed", "err", err)
		} else {
			r.cfg.Metrics.SetBacklogUtilization(pct)
		}
	}
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
