package outbox

import "context"

// PublishResult is the outcome of a single Publisher.Publish call.
type PublishResult struct {
	// Success is true iff the event was accepted by the destination.
	Success bool
	// Retriable is only meaningful when Success is false: true means the
	// failure is transient and the event should be retried (MarkFailed),
	// false means it should be dead-lettered immediately (MarkDeadLetter).
	Retriable bool
	// Reason is the failure reason recorded as Event.LastError. Ignored on success.
	Reason string
}

// Publisher is the opaque capability consumed by the Relay. The core treats
// any error returned from Publish as a transient failure with the error's
// message as the reason, exactly as if Retriable had been set true.
type Publisher interface {
	// Publish delivers a single event to the external destination.
	Publish(ctx context.Context, event Event) (PublishResult, error)
	// IsHealthy reports whether the publisher believes it can currently deliver.
	IsHealthy(ctx context.Context) bool
}

// PublisherFunc adapts a function to Publisher for destinations with no
// separate health signal; IsHealthy always reports true.
type PublisherFunc func(ctx context.Context, event Event) (PublishResult, error)

// Publish implements Publisher.
func (fn PublisherFunc) Publish(ctx context.Context, event Event) (PublishResult, error) {
	return fn(ctx, event)
}

// IsHealthy implements Publisher.
func (PublisherFunc) IsHealthy(context.Context) bool {
	return true
}
