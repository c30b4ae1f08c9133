package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/velmie/outbox"
)

// IsProcessed reports whether trackingID has an idempotency record from any consumer.
func (s *Store) IsProcessed(ctx context.Context, trackingID outbox.TrackingID) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE tracking_id = $1 LIMIT 1`, s.cfg.IdempotencyTable)

	var exists int
	err := s.db.QueryRowContext(ctx, query, toUUID(trackingID)).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("outbox postgres: is processed failed: %w", err)
	default:
		return true, nil
	}
}

// MarkProcessed race-safely records (trackingID, consumerID). Returns true
// iff this call performed the insert.
func (s *Store) MarkProcessed(ctx context.Context, trackingID outbox.TrackingID, consumerID string) (bool, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (tracking_id, consumer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		s.cfg.IdempotencyTable,
	)

	result, err := s.db.ExecContext(ctx, query, toUUID(trackingID), consumerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return false, nil
		}

		return false, fmt.Errorf("outbox postgres: mark processed failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox postgres: mark processed failed: %w", err)
	}

	return affected > 0, nil
}

// GetRecord returns the stored record for trackingID, or outbox.ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, trackingID outbox.TrackingID) (outbox.IdempotencyRecord, error) {
	query := fmt.Sprintf(
		`SELECT tracking_id, consumer_id, processed_at FROM %s WHERE tracking_id = $1 LIMIT 1`,
		s.cfg.IdempotencyTable,
	)

	var (
		rec        outbox.IdempotencyRecord
		storedUUID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, toUUID(trackingID)).Scan(&storedUUID, &rec.ConsumerID, &rec.ProcessedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return outbox.IdempotencyRecord{}, outbox.ErrNotFound
	case err != nil:
		return outbox.IdempotencyRecord{}, fmt.Errorf("outbox postgres: get record failed: %w", err)
	default:
		rec.TrackingID = fromUUID(storedUUID)

		return rec, nil
	}
}
