package outbox

import "time"

const (
	defaultBatchSize          = 50
	defaultPollInterval       = 500 * time.Millisecond
	defaultConcurrency        = 1
	defaultLeaseSeconds       = 30
	defaultHeartbeatFraction  = 3
	defaultShutdownGraceRatio = 1 // shutdown grace == lease_seconds by default
	defaultMetricsInterval    = 0 // gauge sampling disabled unless WithMetricsInterval is set
)

// RelayConfig configures a Relay. Field names and effects mirror spec §6's
// configuration surface (outbox_batch_size, outbox_lease_seconds, ...).
type RelayConfig struct {
	BatchSize int
	// LeaseSeconds is the initial and renewal lease duration.
	LeaseSeconds int
	PollInterval time.Duration
	// Concurrency is the max events processed in parallel within a claimed
	// batch. Values > 1 emit a startup warning about ordering, per spec §4.2.
	Concurrency int
	// HeartbeatInterval must satisfy HeartbeatInterval <= LeaseSeconds/3.
	// Zero derives LeaseSeconds/3.
	HeartbeatInterval time.Duration
	RetryPolicy       BackoffPolicy
	// ShutdownGrace bounds how long in-flight events are given to finish
	// after Run's context is canceled; zero derives LeaseSeconds.
	ShutdownGrace time.Duration
	LockToken     LockTokenGenerator
	Clock         Clock
	Logger        Logger
	Metrics       Metrics
	// MetricsInterval is the minimum interval between gauge samples
	// (pending/processing/dead-letter/oldest-pending/backlog) taken from the
	// repository during the poll loop. Zero (the default) disables gauge
	// sampling.
	MetricsInterval time.Duration
	// Backlog, if set, additionally samples backlog utilization into
	// Metrics.SetBacklogUtilization alongside the other gauges.
	Backlog *BacklogLimiter
}

func (c RelayConfig) withDefaults() (RelayConfig, error) {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = defaultLeaseSeconds
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Duration(c.LeaseSeconds) * time.Second / defaultHeartbeatFraction
	}
	if c.HeartbeatInterval > time.Duration(c.LeaseSeconds)*time.Second/defaultHeartbeatFraction {
		return c, ErrHeartbeatTooSlow
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = defaultMetricsInterval
	}
	c.RetryPolicy = c.RetryPolicy.withDefaults()
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = time.Duration(c.LeaseSeconds) * time.Second * defaultShutdownGraceRatio
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.LockToken == nil {
		c.LockToken = NewMonotonicLockTokenGenerator(c.Clock)
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c, nil
}

// RelayOption configures Relay behavior.
type RelayOption func(*RelayConfig)

// WithBatchSize sets the number of events claimed per iteration.
func WithBatchSize(size int) RelayOption {
	return func(c *RelayConfig) { c.BatchSize = size }
}

// WithLeaseSeconds sets the initial and renewal lease duration.
func WithLeaseSeconds(seconds int) RelayOption {
	return func(c *RelayConfig) { c.LeaseSeconds = seconds }
}

// WithPollInterval sets the delay between empty polls.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) { c.PollInterval = interval }
}

// WithConcurrency sets the max events processed in parallel per batch.
func WithConcurrency(n int) RelayOption {
	return func(c *RelayConfig) { c.Concurrency = n }
}

// WithHeartbeatInterval sets the lease renewal cadence.
func WithHeartbeatInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) { c.HeartbeatInterval = interval }
}

// WithRetryPolicy sets the backoff policy used to compute visible_at on failure.
func WithRetryPolicy(policy BackoffPolicy) RelayOption {
	return func(c *RelayConfig) { c.RetryPolicy = policy }
}

// WithShutdownGrace bounds how long in-flight events may keep running after
// Run's context is canceled.
func WithShutdownGrace(d time.Duration) RelayOption {
	return func(c *RelayConfig) { c.ShutdownGrace = d }
}

// WithLockTokenGenerator overrides the fencing token generator.
func WithLockTokenGenerator(gen LockTokenGenerator) RelayOption {
	return func(c *RelayConfig) { c.LockToken = gen }
}

// WithClock overrides the relay's time source.
func WithClock(clock Clock) RelayOption {
	return func(c *RelayConfig) { c.Clock = clock }
}

// WithLogger sets the relay logger.
func WithLogger(logger Logger) RelayOption {
	return func(c *RelayConfig) { c.Logger = logger }
}

// WithMetrics sets the relay metrics recorder.
func WithMetrics(metrics Metrics) RelayOption {
	return func(c *RelayConfig) { c.Metrics = metrics }
}

// WithMetricsInterval sets the minimum interval between gauge samples taken
// from the repository. Zero or negative disables gauge sampling.
func WithMetricsInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) { c.MetricsInterval = interval }
}

// WithBacklogLimiter attaches a BacklogLimiter so the poll loop also samples
// Metrics.SetBacklogUtilization alongside the other gauges.
func WithBacklogLimiter(limiter *BacklogLimiter) RelayOption {
	return func(c *RelayConfig) { c.Backlog = limiter }
}
