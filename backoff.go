package outbox

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

const (
	defaultBackoffBase         = 100 * time.Millisecond
	defaultBackoffMax          = 30 * time.Second
	defaultBackoffJitterFactor = 0.1
)

// BackoffPolicy computes the delay before a FAILED event becomes eligible
// for reclaim again, per spec §4.4: exponential with jitter and a cap.
type BackoffPolicy struct {
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Base <= 0 {
		p.Base = defaultBackoffBase
	}
	if p.Max <= 0 {
		p.Max = defaultBackoffMax
	}
	if p.JitterFactor <= 0 {
		p.JitterFactor = defaultBackoffJitterFactor
	}

	return p
}

// Delay returns the backoff delay for zero-based attempt n:
//
//	exponential = min(max, base * 2^n)
//	jitter      = uniform_random(0, exponential * jitter_factor)
//	delay       = floor(exponential + jitter)
func (p BackoffPolicy) Delay(n int) time.Duration {
	p = p.withDefaults()
	if n < 0 {
		n = 0
	}

	exponential := float64(p.Base) * math.Pow(2, float64(n))
	if maxF := float64(p.Max); exponential > maxF {
		exponential = maxF
	}

	jitter := exponential * p.JitterFactor * randomUnit()

	return time.Duration(exponential + jitter)
}

// randomUnit returns a uniform random float64 in [0, 1), falling back to 0
// (no jitter) if the CSPRNG is unavailable rather than panicking a hot path.
func randomUnit() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	// Use the top 53 bits for a float64 with full mantissa precision, mirroring
	// the standard library's math/rand/v2 float64 construction technique.
	const mantissaBits = 53
	value := binary.BigEndian.Uint64(buf[:]) >> (64 - mantissaBits)

	return float64(value) / float64(uint64(1)<<mantissaBits)
}
