package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/velmie/outbox"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (outbox.Event, error) {
	var (
		e           outbox.Event
		trackingID  uuid.UUID
		payload     json.RawMessage
		metadata    sql.NullString
		status      string
		processedAt sql.NullTime
		lockedUntil sql.NullTime
		lockToken   sql.NullInt64
		lastError   sql.NullString
		visibleAt   sql.NullTime
	)

	err := row.Scan(
		&e.ID, &trackingID, &e.AggregateType, &e.AggregateID, &e.EventType,
		&payload, &metadata, &status, &e.RetryCount, &e.MaxRetries, &e.CreatedAt,
		&processedAt, &lockedUntil, &lockToken, &lastError, &visibleAt,
	)
	if err != nil {
		return outbox.Event{}, err
	}

	e.TrackingID = fromUUID(trackingID)
	e.Payload = payload
	e.Status = outbox.Status(status)
	if metadata.Valid {
		e.Metadata = json.RawMessage(metadata.String)
	}
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		e.LockedUntil = &t
	}
	if lockToken.Valid {
		v := lockToken.Int64
		e.LockToken = &v
	}
	if lastError.Valid {
		e.LastError = lastError.String
	}
	if visibleAt.Valid {
		t := visibleAt.Time
		e.VisibleAt = &t
	}

	return e, nil
}

func scanEvents(rows *sql.Rows, sizeHint int) ([]outbox.Event, error) {
	events := make([]outbox.Event, 0, sizeHint)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("outbox postgres: scan event failed: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox postgres: rows failed: %w", err)
	}

	return events, nil
}
