package outbox

import (
	"context"
	"database/sql"
	"time"
)

// PageRequest scopes a FindRecent call. Only one of After/Before should be
// set; if neither is set the most recent page is returned.
type PageRequest struct {
	Limit  int
	After  *int64
	Before *int64
}

// Page is a cursor-stable slice of events, newest-first, per the FindRecent
// pagination policy.
type Page struct {
	Events  []Event
	HasMore bool
}

// DeadLetterStats summarizes DEAD_LETTER events for a single event type.
type DeadLetterStats struct {
	EventType   string
	Count       int
	OldestAge   time.Duration
	NewestAge   time.Duration
	ErrSamples  []string
}

// Repository is the narrow, atomic contract the relay core issues against
// the event store. Every state-changing operation here is atomic at the
// database level; concurrency correctness rests on this interface's
// implementation, not on any in-process synchronization.
type Repository interface {
	// Insert persists a new event and returns it with the server-assigned id
	// and created_at populated. It takes no transaction, so it does not join
	// a caller's business transaction; TxInserter.InsertTx is the form that
	// does. Fails with ErrUniqueTrackingID if tracking_id collides.
	Insert(ctx context.Context, event NewEvent) (Event, error)

	// ClaimBatch atomically selects up to batchSize PENDING/FAILED rows that
	// are eligible now, transitions them to PROCESSING stamped with
	// lockToken and a lease deadline of leaseSeconds from now, and returns
	// them ordered by created_at ascending.
	ClaimBatch(ctx context.Context, batchSize int, leaseSeconds int, lockToken int64) ([]Event, error)

	// MarkCompleted conditionally transitions id to COMPLETED iff it is
	// currently held under lockToken. Returns false if the lease was lost.
	MarkCompleted(ctx context.Context, id int64, lockToken int64) (bool, error)

	// MarkFailed conditionally increments retry_count and transitions id to
	// FAILED, recording reason as last_error, iff held under lockToken.
	// visibleAt, if non-nil, is stored so ClaimBatch defers reclaim until then.
	MarkFailed(ctx context.Context, id int64, lockToken int64, reason string, visibleAt *time.Time) (bool, error)

	// MarkDeadLetter conditionally transitions id to DEAD_LETTER, recording
	// reason as last_error, iff held under lockToken.
	MarkDeadLetter(ctx context.Context, id int64, lockToken int64, reason string) (bool, error)

	// RenewLease conditionally extends the lease on id by leaseSeconds iff
	// it is currently PROCESSING and held under lockToken.
	RenewLease(ctx context.Context, id int64, lockToken int64, leaseSeconds int) (bool, error)

	// RecoverStaleEvents returns PROCESSING rows whose lease has expired to
	// PENDING, clearing lease fields and preserving retry_count.
	RecoverStaleEvents(ctx context.Context) (int, error)

	// RedriveByEventType resets DEAD_LETTER rows of the given type to
	// PENDING with retry_count and last_error cleared.
	RedriveByEventType(ctx context.Context, eventType string) (int, error)

	// RedriveById resets a single DEAD_LETTER row to PENDING.
	RedriveById(ctx context.Context, id int64) (bool, error)

	PendingCount(ctx context.Context) (int, error)
	ProcessingCount(ctx context.Context) (int, error)
	CompletedCount(ctx context.Context) (int, error)
	DeadLetterCount(ctx context.Context) (int, error)
	OldestPendingAgeSeconds(ctx context.Context) (float64, error)

	FindByTrackingId(ctx context.Context, trackingID TrackingID) (Event, error)
	FindById(ctx context.Context, id int64) (Event, error)
	FindByStatus(ctx context.Context, status Status, limit int) ([]Event, error)
	FindRecent(ctx context.Context, req PageRequest) (Page, error)
	GetDeadLetterStats(ctx context.Context) ([]DeadLetterStats, error)
}

// Executor is the subset of database/sql's *sql.Tx and *sql.DB a Repository
// needs to run a statement inside a caller-supplied transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxInserter is an optional capability a Repository implementation may
// provide to colocate the event insert with the business state change it
// originates from, in the same database transaction. Repository.Insert is
// the non-transactional convenience form used when no caller transaction
// exists.
type TxInserter interface {
	InsertTx(ctx context.Context, exec Executor, event NewEvent) (Event, error)
}

// AdvisoryLocker is an optional capability a Repository implementation may
// provide so a single Reaper or maintainer runs at a time across processes
// sharing the database, without a dedicated coordination service.
type AdvisoryLocker interface {
	// TryLock attempts to acquire a named advisory lock without blocking.
	TryLock(ctx context.Context, name string) (bool, error)
	// Unlock releases a lock previously acquired with TryLock.
	Unlock(ctx context.Context, name string) error
}
