package postgres

import (
	"strings"
	"testing"
)

func TestSchemaRejectsInvalidTable(t *testing.T) {
	if _, err := Schema("bad name"); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}

func TestSchemaContainsExpectedObjects(t *testing.T) {
	ddl, err := Schema("outbox_events")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"tracking_id UUID NOT NULL",
		"UNIQUE (tracking_id)",
		"outbox_events_claim_idx",
		"outbox_events_lease_idx",
		"outbox_events_aggregate_idx",
		"outbox_events_dead_letter_idx",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("expected schema to contain %q", want)
		}
	}
}

func TestIdempotencySchemaContainsCompositeKey(t *testing.T) {
	ddl, err := IdempotencySchema("outbox_processed_events")
	if err != nil {
		t.Fatalf("idempotency schema: %v", err)
	}

	if !strings.Contains(ddl, "PRIMARY KEY (tracking_id, consumer_id)") {
		t.Error("expected composite primary key over tracking_id and consumer_id")
	}
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS outbox_processed_events") {
		t.Error("expected table name to be interpolated")
	}
}

func TestIdempotencySchemaRejectsInvalidTable(t *testing.T) {
	if _, err := IdempotencySchema("bad;name"); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}
