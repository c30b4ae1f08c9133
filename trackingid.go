package outbox

import (
	"crypto/rand"
	"encoding/hex"
)

// TrackingID is the 128-bit idempotency key shared by producer, relay, and
// consumer. It is generated and compared without a UUID library, formatted
// as a canonical RFC 4122 string only at the edges (SQL args, logs) where
// that format is expected.
type TrackingID [16]byte

// NewTrackingID returns a random (version 4, variant 1) TrackingID.
func NewTrackingID() (TrackingID, error) {
	var id TrackingID
	if _, err := rand.Read(id[:]); err != nil {
		return TrackingID{}, err
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80

	return id, nil
}

// IsZero reports whether t is the zero value.
func (t TrackingID) IsZero() bool {
	return t == TrackingID{}
}

// String returns the canonical 8-4-4-4-12 hyphenated hex form.
func (t TrackingID) String() string {
	var buf [36]byte
	hex.Encode(buf[0:8], t[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], t[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], t[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], t[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], t[10:16])

	return string(buf[:])
}

// ParseTrackingID parses the canonical hyphenated hex form produced by String.
func ParseTrackingID(s string) (TrackingID, error) {
	var id TrackingID
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return TrackingID{}, ErrInvalidTrackingID
	}

	segments := [5][2]int{{0, 8}, {9, 13}, {14, 18}, {19, 23}, {24, 36}}
	dstOffsets := [5]int{0, 4, 6, 8, 10}
	for i, seg := range segments {
		dst := id[dstOffsets[i] : dstOffsets[i]+(seg[1]-seg[0])/2]
		if _, err := hex.Decode(dst, []byte(s[seg[0]:seg[1]])); err != nil {
			return TrackingID{}, ErrInvalidTrackingID
		}
	}

	return id, nil
}
