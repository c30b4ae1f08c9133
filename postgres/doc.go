// Package postgres provides a PostgreSQL-backed implementation of
// outbox.Repository and outbox.IdempotencyStore.
//
// Claiming uses SELECT ... FOR UPDATE SKIP LOCKED nested inside an
// UPDATE ... RETURNING statement, so N workers polling concurrently make
// progress without serializing on the same rows or blocking each other.
// Every state-changing statement is additionally gated on the caller
// presenting the fencing token (lock_token) it was issued at claim time.
//
// See Schema for the DDL, and Store for the connection to a *sql.DB opened
// with a driver registered under the "pgx" or "postgres" name. The SQL is
// driver-agnostic, but unique violations are recognised only as pgx's
// *pgconn.PgError; github.com/jackc/pgx/v5/stdlib is the reference driver
// used by cmd/outbox-relay.
package postgres
