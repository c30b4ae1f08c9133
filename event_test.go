package outbox

import (
	"testing"
	"time"
)

func TestNewEventValidate(t *testing.T) {
	base := func() NewEvent {
		return NewEvent{
			AggregateType: "order",
			AggregateID:   "1",
			EventType:     "OrderCreated",
			Payload:       []byte(`{"id":1}`),
		}
	}

	cases := []struct {
		name    string
		mutate  func(*NewEvent)
		wantErr error
	}{
		{"valid", func(*NewEvent) {}, nil},
		{"missing aggregate type", func(e *NewEvent) { e.AggregateType = "" }, ErrAggregateTypeRequired},
		{"missing event type", func(e *NewEvent) { e.EventType = "" }, ErrEventTypeRequired},
		{"missing payload", func(e *NewEvent) { e.Payload = nil }, ErrPayloadRequired},
		{"invalid payload json", func(e *NewEvent) { e.Payload = []byte(`{not json`) }, ErrInvalidPayload},
		{"invalid metadata json", func(e *NewEvent) { e.Metadata = []byte(`{not json`) }, ErrInvalidMetadata},
		{"negative max retries", func(e *NewEvent) { e.MaxRetries = -1 }, ErrInvalidMaxRetries},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := base()
			tc.mutate(&e)

			err := e.Validate()
			if err != tc.wantErr {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEventLeased(t *testing.T) {
	token := int64(42)
	lockedUntil := time.Now().Add(time.Minute)

	cases := []struct {
		name string
		e    Event
		want bool
	}{
		{"processing with lease", Event{Status: StatusProcessing, LockedUntil: &lockedUntil, LockToken: &token}, true},
		{"pending", Event{Status: StatusPending}, false},
		{"processing missing lock fields", Event{Status: StatusProcessing}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.e.Leased(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
