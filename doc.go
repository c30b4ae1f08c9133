// Package outbox implements the transactional outbox pattern against a
// PostgreSQL-backed event store: a domain event becomes durable in the same
// transaction as the business state change and is later relayed
// at-least-once to an external destination.
//
// The core is a small set of cooperating pieces: a Repository owning the
// event store's SQL, a Relay that claims batches under a lease protected by
// a fencing token and drives them through a Publisher, a Reaper that
// recovers leases abandoned by crashed workers, and an IdempotencyStore
// consulted by consumer code to deduplicate at-least-once delivery.
//
// Concurrency correctness rests entirely on the database: ClaimBatch uses
// row-level lock-and-skip so N workers make progress without serializing,
// and every state-changing Repository call is gated on the caller
// presenting the fencing token it was issued at claim time.
//
// For the PostgreSQL implementation, see the postgres package.
package outbox
