package postgres

import "github.com/velmie/outbox"

const (
	defaultTable            = "outbox_events"
	defaultIdempotencyTable = "outbox_processed_events"
	defaultMaxErrorLen      = 1024
	defaultMaxRetries       = 5
)

// Config defines PostgreSQL store behavior.
type Config struct {
	// Table is the outbox events table name. Defaults to "outbox_events".
	Table string
	// IdempotencyTable is the consumer-side dedup table name used by the
	// Store's IdempotencyStore implementation. Defaults to
	// "outbox_processed_events".
	IdempotencyTable string
	// MaxErrorLen truncates last_error before storing it. Defaults to 1024.
	MaxErrorLen int
	// DefaultMaxRetries is stamped onto a new event's max_retries column when
	// NewEvent.MaxRetries is left at zero. Defaults to 5. This is the
	// spec's outbox_max_retries knob.
	DefaultMaxRetries int
	Clock             outbox.Clock
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.IdempotencyTable == "" {
		c.IdempotencyTable = defaultIdempotencyTable
	}
	if c.MaxErrorLen <= 0 {
		c.MaxErrorLen = defaultMaxErrorLen
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = defaultMaxRetries
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}

	return c
}

// Option configures the PostgreSQL store.
type Option func(*Config)

// WithTable sets the outbox events table name.
func WithTable(name string) Option {
	return func(c *Config) { c.Table = name }
}

// WithIdempotencyTable sets the consumer-side dedup table name.
func WithIdempotencyTable(name string) Option {
	return func(c *Config) { c.IdempotencyTable = name }
}

// WithMaxErrorLen bounds how much of a failure reason is persisted to last_error.
func WithMaxErrorLen(n int) Option {
	return func(c *Config) { c.MaxErrorLen = n }
}

// WithDefaultMaxRetries sets the retry cap stamped onto new events that
// don't specify their own.
func WithDefaultMaxRetries(n int) Option {
	return func(c *Config) { c.DefaultMaxRetries = n }
}

// WithClock overrides the store's time source.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}
