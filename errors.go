package outbox

import "errors"

var (
	// ErrAggregateTypeRequired is returned when NewEvent.AggregateType is empty.
	ErrAggregateTypeRequired = errors.New("outbox: aggregate type is required")
	// ErrEventTypeRequired is returned when NewEvent.EventType is empty.
	ErrEventTypeRequired = errors.New("outbox: event type is required")
	// ErrPayloadRequired is returned when NewEvent.Payload is empty.
	ErrPayloadRequired = errors.New("outbox: payload is required")
	// ErrInvalidPayload is returned when NewEvent.Payload is not valid JSON.
	ErrInvalidPayload = errors.New("outbox: payload must be valid JSON")
	// ErrInvalidMetadata is returned when NewEvent.Metadata is not valid JSON.
	ErrInvalidMetadata = errors.New("outbox: metadata must be valid JSON")
	// ErrInvalidMaxRetries is returned when NewEvent.MaxRetries is negative.
	ErrInvalidMaxRetries = errors.New("outbox: max retries must be non-negative")
	// ErrInvalidTrackingID is returned by ParseTrackingID when s is not a
	// canonical 8-4-4-4-12 hyphenated hex string.
	ErrInvalidTrackingID = errors.New("outbox: invalid tracking id")

	// ErrUniqueTrackingID is returned by Repository.Insert when tracking_id collides.
	ErrUniqueTrackingID = errors.New("outbox: tracking id already exists")
	// ErrNotFound is returned by read operations that find no matching row.
	ErrNotFound = errors.New("outbox: event not found")
	// ErrLeaseLost names the case where a mark/renew call affected zero rows
	// because another worker now holds the lease, or the event was reaped.
	// Repository methods report that case as a false result, not as this error.
	ErrLeaseLost = errors.New("outbox: lease lost")
	// ErrMassRedriveRejected is returned when a redrive call is not scoped by
	// event type or id; mass redrive without a filter is rejected by policy.
	ErrMassRedriveRejected = errors.New("outbox: redrive must be scoped by event type or id")

	// ErrBacklogExceeded is returned by the backlog limiter's "throw" action.
	ErrBacklogExceeded = errors.New("outbox: pending backlog exceeds configured maximum")
	// ErrNotEnqueued is returned by the backlog limiter's "drop" action.
	ErrNotEnqueued = errors.New("outbox: event was not enqueued due to backlog limit")

	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox: batch size must be positive")
	// ErrInvalidLeaseSeconds indicates a non-positive lease duration.
	ErrInvalidLeaseSeconds = errors.New("outbox: lease seconds must be positive")
	// ErrHeartbeatTooSlow indicates heartbeat_interval > lease_seconds/3.
	ErrHeartbeatTooSlow = errors.New("outbox: heartbeat interval must be at most lease/3")
	// ErrReaperTooSlow indicates reaper_interval > lease_seconds/2.
	ErrReaperTooSlow = errors.New("outbox: reaper interval must be at most lease/2")

	// ErrWorkerPanic indicates a relay worker goroutine panicked.
	ErrWorkerPanic = errors.New("outbox: worker panic")
	// ErrNilRepository indicates a nil Repository was supplied to NewRelay/NewReaper.
	ErrNilRepository = errors.New("outbox: repository is required")
	// ErrNilPublisher indicates a nil Publisher was supplied to NewRelay.
	ErrNilPublisher = errors.New("outbox: publisher is required")
)
