package outbox

import (
	"context"
	"time"
)

// IdempotencyRecord is a single consumer-side dedup marker.
type IdempotencyRecord struct {
	TrackingID  TrackingID
	ConsumerID  string
	ProcessedAt time.Time
}

// IdempotencyStore is the narrow three-operation port consulted by consumer
// code, not by the relay, to deduplicate at-least-once delivery.
type IdempotencyStore interface {
	// IsProcessed reports whether trackingID has been marked processed by
	// any consumer.
	IsProcessed(ctx context.Context, trackingID TrackingID) (bool, error)
	// MarkProcessed race-safely inserts (trackingID, consumerID). Returns
	// true iff this call performed the insert; false if the pair already
	// existed.
	MarkProcessed(ctx context.Context, trackingID TrackingID, consumerID string) (bool, error)
	// GetRecord returns the stored record for trackingID, or ErrNotFound.
	GetRecord(ctx context.Context, trackingID TrackingID) (IdempotencyRecord, error)
}

// IdempotentExecutor wraps an IdempotencyStore with attempt-mark ->
// conditionally-execute semantics; it does not call IsProcessed first, the
// result of MarkProcessed alone decides whether fn runs. It does not roll back the mark on
// function failure: at-least-once delivery is preserved across crashes, but
// the wrapped function itself must be idempotent (forward TrackingID as an
// idempotency key to any downstream API it calls).
type IdempotentExecutor struct {
	Store      IdempotencyStore
	ConsumerID string
}

// NewIdempotentExecutor constructs an IdempotentExecutor.
func NewIdempotentExecutor(store IdempotencyStore, consumerID string) *IdempotentExecutor {
	return &IdempotentExecutor{Store: store, ConsumerID: consumerID}
}

// Execute runs fn at most once per (trackingID, ConsumerID) pair. Returns
// ran=false without error when a peer has already claimed (or completed)
// the work.
func (e *IdempotentExecutor) Execute(ctx context.Context, trackingID TrackingID, fn func(ctx context.Context) error) (ran bool, err error) {
	marked, err := e.Store.MarkProcessed(ctx, trackingID, e.ConsumerID)
	if err != nil {
		return false, err
	}
	if !marked {
		return false, nil
	}

	return true, fn(ctx)
}
