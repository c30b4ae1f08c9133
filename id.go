package outbox

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

const lockTokenRandSpan = 1000

// LockTokenGenerator creates fencing tokens for a Relay Worker's lifetime.
type LockTokenGenerator interface {
	// New returns a fresh lock token, monotonically increasing within a
	// process and sufficiently unique across processes.
	New() (int64, error)
}

// MonotonicLockTokenGenerator produces tokens as
// millis(now) * 1000 + rand(0, 999), per spec §9: "a 64-bit integer with
// millis * 1000 + rand(0..999) suffices". Strictly increasing within a
// single process even under clock stalls, via a monotonic in-memory floor.
type MonotonicLockTokenGenerator struct {
	mu     sync.Mutex
	clock  Clock
	rand   func() (int64, error)
	lastMS int64
}

// NewMonotonicLockTokenGenerator creates a generator using the provided clock.
func NewMonotonicLockTokenGenerator(clock Clock) *MonotonicLockTokenGenerator {
	if clock == nil {
		clock = SystemClock{}
	}

	return &MonotonicLockTokenGenerator{clock: clock, rand: randSpan}
}

// New returns a fresh lock token.
func (g *MonotonicLockTokenGenerator) New() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UnixMilli()
	if now <= g.lastMS {
		now = g.lastMS + 1
	}
	g.lastMS = now

	suffix, err := g.rand()
	if err != nil {
		return 0, err
	}

	return now*lockTokenRandSpan + suffix, nil
}

func randSpan() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	value := binary.BigEndian.Uint64(buf[:])

	return int64(value % lockTokenRandSpan), nil
}
