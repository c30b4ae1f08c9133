package outbox

import (
	"encoding/json"
	"time"
)

// NewEvent describes a new outbox event to be persisted by Repository.Insert.
type NewEvent struct {
	// TrackingID is the idempotency key across producer, relay, and consumer.
	// If zero, Insert generates one.
	TrackingID TrackingID
	// AggregateType is a coarse-grained business correlation tag (e.g. "order").
	AggregateType string
	// AggregateID optionally identifies the aggregate instance (e.g. an order id).
	AggregateID string
	// EventType names the specific event (e.g. "order.created").
	EventType string
	// Payload is opaque to the core and stored as a JSON document.
	Payload json.RawMessage
	// Metadata carries schema version, trace context, correlation/causation IDs.
	Metadata json.RawMessage
	// MaxRetries caps retry_count before the event is dead-lettered. Zero uses
	// the repository's configured default.
	MaxRetries int
}

// Validate checks the required fields and JSON validity of a NewEvent.
func (e NewEvent) Validate() error {
	if e.AggregateType == "" {
		return ErrAggregateTypeRequired
	}
	if e.EventType == "" {
		return ErrEventTypeRequired
	}
	if len(e.Payload) == 0 {
		return ErrPayloadRequired
	}
	if !json.Valid(e.Payload) {
		return ErrInvalidPayload
	}
	if len(e.Metadata) > 0 && !json.Valid(e.Metadata) {
		return ErrInvalidMetadata
	}
	if e.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	return nil
}

// Event is a stored outbox row as returned by the Repository.
type Event struct {
	ID            int64
	TrackingID    TrackingID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Metadata      json.RawMessage
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	LockedUntil   *time.Time
	// LockToken identifies the current leaseholder; nil iff Status != PROCESSING.
	LockToken *int64
	LastError string
	// VisibleAt is the earliest time a FAILED row is eligible for reclaim by
	// ClaimBatch, enforcing the backoff delay precisely (spec's conforming
	// extension over natural polling re-admission). Nil means immediately
	// eligible.
	VisibleAt *time.Time
}

// Leased reports whether the event is currently held under an active lease.
func (e Event) Leased() bool {
	return e.Status == StatusProcessing && e.LockedUntil != nil && e.LockToken != nil
}
