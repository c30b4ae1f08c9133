package postgres

import "fmt"

const eventsSchemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	tracking_id UUID NOT NULL,
	aggregate_type VARCHAR(128) NOT NULL,
	aggregate_id VARCHAR(128) NOT NULL,
	event_type VARCHAR(128) NOT NULL,
	payload JSONB NOT NULL,
	metadata JSONB NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
	retry_count INT NOT NULL DEFAULT 0,
	max_retries INT NOT NULL DEFAULT 5,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ NULL,
	locked_until TIMESTAMPTZ NULL,
	lock_token BIGINT NULL,
	last_error VARCHAR(1024) NULL,
	visible_at TIMESTAMPTZ NULL,
	CONSTRAINT %[1]s_tracking_id_key UNIQUE (tracking_id)
);
CREATE INDEX IF NOT EXISTS %[1]s_claim_idx ON %[1]s (created_at)
	WHERE status IN ('PENDING', 'FAILED');
CREATE INDEX IF NOT EXISTS %[1]s_lease_idx ON %[1]s (locked_until)
	WHERE status = 'PROCESSING';
CREATE INDEX IF NOT EXISTS %[1]s_aggregate_idx ON %[1]s (aggregate_id, created_at);
CREATE INDEX IF NOT EXISTS %[1]s_dead_letter_idx ON %[1]s (event_type, created_at)
	WHERE status = 'DEAD_LETTER';`

const idempotencySchemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	tracking_id UUID NOT NULL,
	consumer_id VARCHAR(128) NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tracking_id, consumer_id)
);`

// Schema returns the DDL for the outbox events table, including the
// indices ClaimBatch, RecoverStaleEvents, FindByStatus, and
// GetDeadLetterStats rely on. Partition and retention management are
// delegated to the database's native partitioning and are not templated
// here.
func Schema(table string) (string, error) {
	name, err := sanitizeIdentifier(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(eventsSchemaTemplate, name), nil
}

// IdempotencySchema returns the DDL for the consumer-side dedup table used
// by Store's IdempotencyStore implementation.
func IdempotencySchema(table string) (string, error) {
	name, err := sanitizeIdentifier(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(idempotencySchemaTemplate, name), nil
}
