package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/velmie/outbox"
)

const uniqueViolationCode = "23505"

// Store is a PostgreSQL-backed outbox.Repository and outbox.IdempotencyStore.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ outbox.Repository       = (*Store)(nil)
	_ outbox.TxInserter       = (*Store)(nil)
	_ outbox.AdvisoryLocker   = (*Store)(nil)
	_ outbox.IdempotencyStore = (*Store)(nil)
)

// NewStore constructs a PostgreSQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeIdentifier(cfg.Table)
	if err != nil {
		return nil, err
	}
	if _, err := sanitizeIdentifier(cfg.IdempotencyTable); err != nil {
		return nil, err
	}

	return &Store{db: db, cfg: cfg, queries: newQueries(table), table: table}, nil
}

// Insert persists event using the store's own *sql.DB. Use InsertTx to
// colocate the insert with a caller-managed business transaction.
func (s *Store) Insert(ctx context.Context, event outbox.NewEvent) (outbox.Event, error) {
	return s.InsertTx(ctx, s.db, event)
}

// InsertTx persists event using exec, which may be a *sql.Tx sharing the
// caller's business transaction so the outbox row becomes durable
// atomically with the state change that produced it.
func (s *Store) InsertTx(ctx context.Context, exec outbox.Executor, event outbox.NewEvent) (outbox.Event, error) {
	if err := event.Validate(); err != nil {
		return outbox.Event{}, err
	}

	trackingID := event.TrackingID
	if trackingID.IsZero() {
		var err error
		trackingID, err = outbox.NewTrackingID()
		if err != nil {
			return outbox.Event{}, fmt.Errorf("outbox postgres: generate tracking id: %w", err)
		}
	}

	maxRetries := event.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.cfg.DefaultMaxRetries
	}

	metadata := any(nil)
	if len(event.Metadata) > 0 {
		metadata = []byte(event.Metadata)
	}

	row := exec.QueryRowContext(
		ctx,
		s.queries.insert,
		toUUID(trackingID), event.AggregateType, event.AggregateID, event.EventType,
		[]byte(event.Payload), metadata, maxRetries,
	)

	result, err := scanEvent(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return outbox.Event{}, outbox.ErrUniqueTrackingID
		}

		return outbox.Event{}, fmt.Errorf("outbox postgres: insert failed: %w", err)
	}

	return result, nil
}

// ClaimBatch atomically claims up to batchSize eligible rows under lockToken.
func (s *Store) ClaimBatch(ctx context.Context, batchSize, leaseSeconds int, lockToken int64) ([]outbox.Event, error) {
	if batchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}
	if leaseSeconds <= 0 {
		return nil, outbox.ErrInvalidLeaseSeconds
	}

	rows, err := s.db.QueryContext(ctx, s.queries.claimBatch, leaseSeconds, lockToken, batchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: claim batch failed: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, batchSize)
	if err != nil {
		return nil, err
	}

	// The claim's WHERE id IN (subquery ORDER BY created_at ASC) governs which
	// rows are selected, not the order UPDATE...RETURNING hands them back —
	// Postgres feeds RETURNING from the join/scan plan, not the subquery's
	// ORDER BY. Re-sort explicitly so callers see created_at ascending.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	return events, nil
}

// MarkCompleted conditionally transitions id to COMPLETED under lockToken.
func (s *Store) MarkCompleted(ctx context.Context, id int64, lockToken int64) (bool, error) {
	return s.exec1(ctx, s.queries.markCompleted, "mark completed", id, lockToken)
}

// MarkFailed conditionally increments retry_count and transitions id to FAILED under lockToken.
func (s *Store) MarkFailed(ctx context.Context, id, lockToken int64, reason string, visibleAt *time.Time) (bool, error) {
	return s.exec1(ctx, s.queries.markFailed, "mark failed", id, lockToken, truncateError(reason, s.cfg.MaxErrorLen), visibleAt)
}

// MarkDeadLetter conditionally transitions id to DEAD_LETTER under lockToken.
func (s *Store) MarkDeadLetter(ctx context.Context, id, lockToken int64, reason string) (bool, error) {
	return s.exec1(ctx, s.queries.markDeadLetter, "mark dead letter", id, lockToken, truncateError(reason, s.cfg.MaxErrorLen))
}

// RenewLease conditionally extends id's lease by leaseSeconds under lockToken.
func (s *Store) RenewLease(ctx context.Context, id, lockToken int64, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, outbox.ErrInvalidLeaseSeconds
	}

	return s.exec1(ctx, s.queries.renewLease, "renew lease", id, lockToken, leaseSeconds)
}

// RecoverStaleEvents returns expired-lease PROCESSING rows to PENDING.
func (s *Store) RecoverStaleEvents(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, s.queries.recoverStale)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: recover stale events failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: recover stale events failed: %w", err)
	}

	return int(affected), nil
}

// RedriveByEventType resets DEAD_LETTER rows of eventType to PENDING.
func (s *Store) RedriveByEventType(ctx context.Context, eventType string) (int, error) {
	if eventType == "" {
		return 0, outbox.ErrMassRedriveRejected
	}

	result, err := s.db.ExecContext(ctx, s.queries.redriveByEventType, eventType)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: redrive by event type failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: redrive by event type failed: %w", err)
	}

	return int(affected), nil
}

// RedriveById resets a single DEAD_LETTER row to PENDING.
func (s *Store) RedriveById(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.queries.redriveById, id)
	if err != nil {
		return false, fmt.Errorf("outbox postgres: redrive by id failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox postgres: redrive by id failed: %w", err)
	}

	return affected > 0, nil
}

// PendingCount returns the number of PENDING or FAILED rows awaiting a claim.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.count(ctx, s.queries.pendingCount)
}

// ProcessingCount returns the number of rows currently leased for processing.
func (s *Store) ProcessingCount(ctx context.Context) (int, error) {
	return s.count(ctx, s.queries.processingCount)
}

// CompletedCount returns the number of COMPLETED rows.
func (s *Store) CompletedCount(ctx context.Context) (int, error) {
	return s.count(ctx, s.queries.completedCount)
}

// DeadLetterCount returns the number of DEAD_LETTER rows.
func (s *Store) DeadLetterCount(ctx context.Context) (int, error) {
	return s.count(ctx, s.queries.deadLetterCount)
}

// OldestPendingAgeSeconds returns the age in seconds of the oldest PENDING or FAILED row.
func (s *Store) OldestPendingAgeSeconds(ctx context.Context) (float64, error) {
	var seconds float64
	if err := s.db.QueryRowContext(ctx, s.queries.oldestPendingAgeSeconds).Scan(&seconds); err != nil {
		return 0, fmt.Errorf("outbox postgres: oldest pending age failed: %w", err)
	}

	return seconds, nil
}

// FindByTrackingId returns the event with trackingID, or outbox.ErrNotFound.
func (s *Store) FindByTrackingId(ctx context.Context, trackingID outbox.TrackingID) (outbox.Event, error) {
	return s.findOne(ctx, s.queries.findByTrackingId, toUUID(trackingID))
}

// FindById returns the event with id, or outbox.ErrNotFound.
func (s *Store) FindById(ctx context.Context, id int64) (outbox.Event, error) {
	return s.findOne(ctx, s.queries.findById, id)
}

// FindByStatus returns up to limit events in status, oldest first.
func (s *Store) FindByStatus(ctx context.Context, status outbox.Status, limit int) ([]outbox.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, s.queries.findByStatus, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: find by status failed: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, limit)
}

// FindRecent returns a cursor page of events newest-first.
func (s *Store) FindRecent(ctx context.Context, req outbox.PageRequest) (outbox.Page, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)

	switch {
	case req.After != nil:
		rows, err = s.db.QueryContext(ctx, s.queries.findRecentAfter, *req.After, limit+1)
	case req.Before != nil:
		rows, err = s.db.QueryContext(ctx, s.queries.findRecentBefore, *req.Before, limit+1)
	default:
		rows, err = s.db.QueryContext(ctx, s.queries.findRecentNewest, limit+1)
	}
	if err != nil {
		return outbox.Page{}, fmt.Errorf("outbox postgres: find recent failed: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, limit+1)
	if err != nil {
		return outbox.Page{}, err
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	if req.After != nil {
		// findRecentAfter orders ascending (id > after) to use the index;
		// reverse into the newest-first contract FindRecent promises callers.
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}

	return outbox.Page{Events: events, HasMore: hasMore}, nil
}

// GetDeadLetterStats summarizes DEAD_LETTER rows grouped by event type.
func (s *Store) GetDeadLetterStats(ctx context.Context) ([]outbox.DeadLetterStats, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.deadLetterStats)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: dead letter stats failed: %w", err)
	}
	defer rows.Close()

	var stats []outbox.DeadLetterStats
	for rows.Next() {
		var (
			eventType           string
			count               int
			oldestAge, newestAge float64
		)
		if err := rows.Scan(&eventType, &count, &oldestAge, &newestAge); err != nil {
			return nil, fmt.Errorf("outbox postgres: dead letter stats scan failed: %w", err)
		}
		stats = append(stats, outbox.DeadLetterStats{
			EventType: eventType,
			Count:     count,
			OldestAge: time.Duration(oldestAge * float64(time.Second)),
			NewestAge: time.Duration(newestAge * float64(time.Second)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox postgres: dead letter stats rows failed: %w", err)
	}

	return stats, nil
}

// TryLock acquires a session-scoped PostgreSQL advisory lock keyed by name's hash.
func (s *Store) TryLock(ctx context.Context, name string) (bool, error) {
	var locked bool
	if err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&locked); err != nil {
		return false, fmt.Errorf("outbox postgres: try advisory lock failed: %w", err)
	}

	return locked, nil
}

// Unlock releases a lock previously acquired with TryLock.
func (s *Store) Unlock(ctx context.Context, name string) error {
	var released bool
	if err := s.db.QueryRowContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name).Scan(&released); err != nil {
		return fmt.Errorf("outbox postgres: release advisory lock failed: %w", err)
	}

	return nil
}

func (s *Store) exec1(ctx context.Context, query, op string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("outbox postgres: %s failed: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox postgres: %s failed: %w", op, err)
	}

	return affected > 0, nil
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("outbox postgres: count failed: %w", err)
	}

	return n, nil
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (outbox.Event, error) {
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return outbox.Event{}, outbox.ErrNotFound
	}
	if err != nil {
		return outbox.Event{}, fmt.Errorf("outbox postgres: find failed: %w", err)
	}

	return event, nil
}

func truncateError(reason string, maxLen int) string {
	if len(reason) <= maxLen {
		return reason
	}

	return reason[:maxLen]
}
