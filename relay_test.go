package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRepository struct {
	mu sync.Mutex

	claimEvents []Event
	claimErr    error

	completedIDs []int64
	completedOK  bool

	failedIDs []int64
	failedOK  bool

	deadIDs []int64
	deadOK  bool

	renewCalls int32
	renewOK    bool
	renewErr   error
}

func (f *fakeRepository) Insert(context.Context, NewEvent) (Event, error) { return Event{}, nil }

func (f *fakeRepository) ClaimBatch(context.Context, int, int, int64) ([]Event, error) {
	return f.claimEvents, f.claimErr
}

func (f *fakeRepository) MarkCompleted(_ context.Context, id int64, _ int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedIDs = append(f.completedIDs, id)

	return f.completedOK, nil
}

func (f *fakeRepository) MarkFailed(_ context.Context, id int64, _ int64, _ string, _ *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedIDs = append(f.failedIDs, id)

	return f.failedOK, nil
}

func (f *fakeRepository) MarkDeadLetter(_ context.Context, id int64, _ int64, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadIDs = append(f.deadIDs, id)

	return f.deadOK, nil
}

func (f *fakeRepository) RenewLease(context.Context, int64, int64, int) (bool, error) {
	atomic.AddInt32(&f.renewCalls, 1)

	return f.renewOK, f.renewErr
}

func (f *fakeRepository) RecoverStaleEvents(context.Context) (int, error) { return 0, nil }
func (f *fakeRepository) RedriveByEventType(context.Context, string) (int, error) { return 0, nil }
func (f *fakeRepository) RedriveById(context.Context, int64) (bool, error)        { return false, nil }
func (f *fakeRepository) PendingCount(context.Context) (int, error)               { return 0, nil }
func (f *fakeRepository) ProcessingCount(context.Context) (int, error)            { return 0, nil }
func (f *fakeRepository) CompletedCount(context.Context) (int, error)             { return 0, nil }
func (f *fakeRepository) DeadLetterCount(context.Context) (int, error)            { return 0, nil }
func (f *fakeRepository) OldestPendingAgeSeconds(context.Context) (float64, error) { return 0, nil }

func (f *fakeRepository) FindByTrackingId(context.Context, TrackingID) (Event, error) {
	return Event{}, ErrNotFound
}
func (f *fakeRepository) FindById(context.Context, int64) (Event, error) { return Event{}, ErrNotFound }
func (f *fakeRepository) FindByStatus(context.Context, Status, int) ([]Event, error) { return nil, nil }
func (f *fakeRepository) FindRecent(context.Context, PageRequest) (Page, error)      { return Page{}, nil }
func (f *fakeRepository) GetDeadLetterStats(context.Context) ([]DeadLetterStats, error) {
	return nil, nil
}

type fakePublisher struct {
	result PublishResult
	err    error
	delay  time.Duration
	calls  int32
}

func (p *fakePublisher) Publish(ctx context.Context, _ Event) (PublishResult, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
		}
	}

	return p.result, p.err
}

func (p *fakePublisher) IsHealthy(context.Context) bool { return true }

func newTestEvent(id int64, token int64) Event {
	trackingID, err := NewTrackingID()
	if err != nil {
		panic(err)
	}

	return Event{
		ID:          id,
		TrackingID:  trackingID,
		EventType:   "OrderCreated",
		Payload:     json.RawMessage(`{}`),
		Status:      StatusProcessing,
		MaxRetries:  3,
		LockToken:   &token,
		LockedUntil: timePtr(time.Now().Add(time.Minute)),
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestRelaySuccessMarksCompleted(t *testing.T) {
	repo := &fakeRepository{completedOK: true, renewOK: true}
	pub := &fakePublisher{result: PublishResult{Success: true}}

	relay, err := NewRelay(repo, pub, WithLeaseSeconds(3*60*60), WithHeartbeatInterval(time.Hour))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	repo.claimEvents = []Event{newTestEvent(1, relay.LockToken())}

	if _, err := relay.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if len(repo.completedIDs) != 1 || repo.completedIDs[0] != 1 {
		t.Fatalf("expected event 1 marked completed, got %v", repo.completedIDs)
	}
}

func TestRelayRetriableFailureMarksFailed(t *testing.T) {
	repo := &fakeRepository{failedOK: true, renewOK: true}
	pub := &fakePublisher{result: PublishResult{Success: false, Retriable: true, Reason: "timeout"}}

	relay, err := NewRelay(repo, pub, WithLeaseSeconds(3*60*60), WithHeartbeatInterval(time.Hour))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	event := newTestEvent(1, relay.LockToken())
	event.RetryCount = 0
	repo.claimEvents = []Event{event}

	if _, err := relay.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if len(repo.failedIDs) != 1 {
		t.Fatalf("expected event marked failed, got %v", repo.failedIDs)
	}
	if len(repo.deadIDs) != 0 {
		t.Fatalf("expected no dead letters, got %v", repo.deadIDs)
	}
}

func TestRelayExhaustedRetriesDeadLetters(t *testing.T) {
	repo := &fakeRepository{deadOK: true, renewOK: true}
	pub := &fakePublisher{result: PublishResult{Success: false, Retriable: true, Reason: "schema invalid"}}

	relay, err := NewRelay(repo, pub, WithLeaseSeconds(3*60*60), WithHeartbeatInterval(time.Hour))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	event := newTestEvent(1, relay.LockToken())
	event.RetryCount = 2
	event.MaxRetries = 3
	repo.claimEvents = []Event{event}

	if _, err := relay.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if len(repo.deadIDs) != 1 {
		t.Fatalf("expected event dead-lettered, got %v", repo.deadIDs)
	}
}

func TestRelayPermanentFailureDeadLettersImmediately(t *testing.T) {
	repo := &fakeRepository{deadOK: true, renewOK: true}
	pub := &fakePublisher{result: PublishResult{Success: false, Retriable: false, Reason: "unauthorized"}}

	relay, err := NewRelay(repo, pub, WithLeaseSeconds(3*60*60), WithHeartbeatInterval(time.Hour))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	event := newTestEvent(1, relay.LockToken())
	event.RetryCount = 0
	event.MaxRetries = 5
	repo.claimEvents = []Event{event}

	if _, err := relay.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if len(repo.deadIDs) != 1 {
		t.Fatalf("expected immediate dead letter on permanent failure, got %v", repo.deadIDs)
	}
}

func TestRelayLeaseLostAbandonsEvent(t *testing.T) {
	repo := &fakeRepository{renewOK: false, completedOK: true}
	pub := &fakePublisher{result: PublishResult{Success: true}, delay: 50 * time.Millisecond}

	relay, err := NewRelay(repo, pub, WithHeartbeatInterval(5*time.Millisecond))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	repo.claimEvents = []Event{newTestEvent(1, relay.LockToken())}

	if _, err := relay.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if len(repo.completedIDs) != 0 {
		t.Fatalf("expected no completion for a lost lease, got %v", repo.completedIDs)
	}
}

func TestRelayDropsMismatchedLockToken(t *testing.T) {
	repo := &fakeRepository{completedOK: true, renewOK: true}
	pub := &fakePublisher{result: PublishResult{Success: true}}

	relay, err := NewRelay(repo, pub)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	repo.claimEvents = []Event{newTestEvent(1, relay.LockToken()+1)}

	if _, err := relay.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if atomic.LoadInt32(&pub.calls) != 0 {
		t.Fatalf("expected mismatched-token event not to be published")
	}
}

func TestRelayWorkerPanicIsRecovered(t *testing.T) {
	repo := &fakeRepository{completedOK: true, renewOK: true}
	pub := &panicPublisher{}

	relay, err := NewRelay(repo, pub)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	repo.claimEvents = []Event{newTestEvent(1, relay.LockToken())}

	done := make(chan struct{})
	go func() {
		_, _ = relay.ProcessOnce(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected ProcessOnce to return despite worker panic")
	}
}

type panicPublisher struct{}

func (panicPublisher) Publish(context.Context, Event) (PublishResult, error) {
	panic("boom")
}
func (panicPublisher) IsHealthy(context.Context) bool { return true }

func TestNewRelayRequiresRepositoryAndPublisher(t *testing.T) {
	if _, err := NewRelay(nil, &fakePublisher{}); !errors.Is(err, ErrNilRepository) {
		t.Fatalf("expected ErrNilRepository, got %v", err)
	}
	if _, err := NewRelay(&fakeRepository{}, nil); !errors.Is(err, ErrNilPublisher) {
		t.Fatalf("expected ErrNilPublisher, got %v", err)
	}
}

func TestNewRelayRejectsSlowHeartbeat(t *testing.T) {
	_, err := NewRelay(&fakeRepository{}, &fakePublisher{}, WithLeaseSeconds(3), WithHeartbeatInterval(2*time.Second))
	if !errors.Is(err, ErrHeartbeatTooSlow) {
		t.Fatalf("expected ErrHeartbeatTooSlow, got %v", err)
	}
}

type gaugeSourceFakeRepo struct {
	fakeRepository

	pending, processing, dead int
	oldestAge                 float64
}

func (r *gaugeSourceFakeRepo) PendingCount(context.Context) (int, error)    { return r.pending, nil }
func (r *gaugeSourceFakeRepo) ProcessingCount(context.Context) (int, error) { return r.processing, nil }
func (r *gaugeSourceFakeRepo) DeadLetterCount(context.Context) (int, error) { return r.dead, nil }
func (r *gaugeSourceFakeRepo) OldestPendingAgeSeconds(context.Context) (float64, error) {
	return r.oldestAge, nil
}

func TestRelayRecordsGaugesWhenMetricsIntervalConfigured(t *testing.T) {
	repo := &gaugeSourceFakeRepo{pending: 7, processing: 2, dead: 1, oldestAge: 42}
	metrics := &captureMetrics{}
	limiter := NewBacklogLimiter(repo, 10, LimitWarn, NopLogger{})

	relay, err := NewRelay(repo, &fakePublisher{},
		WithMetrics(metrics), WithMetricsInterval(time.Hour), WithBacklogLimiter(limiter))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	relay.maybeRecordGauges(context.Background())

	if atomic.LoadInt32(&metrics.pending) != 7 {
		t.Fatalf("expected pending gauge 7, got %d", metrics.pending)
	}
	if atomic.LoadInt32(&metrics.processing) != 2 {
		t.Fatalf("expected processing gauge 2, got %d", metrics.processing)
	}
	if atomic.LoadInt32(&metrics.deadLetter) != 1 {
		t.Fatalf("expected dead letter gauge 1, got %d", metrics.deadLetter)
	}
	if atomic.LoadInt32(&metrics.oldestPendingAge) != 42 {
		t.Fatalf("expected oldest pending age gauge 42, got %d", metrics.oldestPendingAge)
	}
	if atomic.LoadInt32(&metrics.backlogUtilization) != 70 {
		t.Fatalf("expected backlog utilization gauge 70, got %d", metrics.backlogUtilization)
	}
}

func TestRelayDisablesGaugesByDefault(t *testing.T) {
	repo := &gaugeSourceFakeRepo{pending: 7}
	metrics := &captureMetrics{}

	relay, err := NewRelay(repo, &fakePublisher{}, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	relay.maybeRecordGauges(context.Background())

	if atomic.LoadInt32(&metrics.pending) != 0 {
		t.Fatalf("expected no gauge sampling without WithMetricsInterval, got pending=%d", metrics.pending)
	}
}
