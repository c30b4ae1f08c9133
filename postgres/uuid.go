package postgres

import (
	"github.com/google/uuid"

	"github.com/velmie/outbox"
)

// toUUID and fromUUID bridge outbox's hand-rolled, dependency-free TrackingID
// to google/uuid.UUID at the database boundary, where a real UUID type is
// needed for driver.Valuer/sql.Scanner support against the uuid column type.
// Both types are [16]byte under the hood, so the conversion is exact.
func toUUID(id outbox.TrackingID) uuid.UUID {
	return uuid.UUID(id)
}

func fromUUID(id uuid.UUID) outbox.TrackingID {
	return outbox.TrackingID(id)
}
