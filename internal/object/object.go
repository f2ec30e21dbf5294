// Package object defines the StoredObject handle returned by every store operation.
package object

import (
	"fmt"
	"time"

	"github.com/roach88/shardstore/internal/payload"
)

// Provenance records whether a returned object was just inserted or already existed.
type Provenance int

const (
	// NewlyInserted means the find-or-create call inserted the row.
	NewlyInserted Provenance = iota + 1
	// DeserializedExisting means a tolerance-equivalent row already existed.
	DeserializedExisting
)

// String returns the provenance label used in logs and CLI output.
func (p Provenance) String() string {
	switch p {
	case NewlyInserted:
		return "newly-inserted"
	case DeserializedExisting:
		return "deserialized-existing"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provenance) UnmarshalText(text []byte) error {
	switch string(text) {
	case "newly-inserted":
		*p = NewlyInserted
	case "deserialized-existing":
		*p = DeserializedExisting
	case "unknown":
		*p = 0
	default:
		return fmt.Errorf("unknown provenance %q", text)
	}
	return nil
}

// Object is a stored record as seen by callers.
//
// Objects are created by a factory's find-or-create and are not mutated
// afterwards, except that Store and Validate return updated copies.
type Object struct {
	// StoreID is the serial assigned by the shard. Replicated types carry the
	// same StoreID on every shard.
	StoreID int64 `json:"store_id"`

	// Type is the object type name.
	Type string `json:"type"`

	// Payload holds key and data columns as typed values. Key values are the
	// stored ones, which may differ from the request within tolerance.
	Payload payload.Object `json:"payload"`

	Provenance Provenance `json:"provenance"`

	// VersionSerial is set for versioned types.
	VersionSerial *int64 `json:"version_serial,omitempty"`

	// CreatedAt is set for timestamped types.
	CreatedAt *time.Time `json:"created_at,omitempty"`

	// Validated reports the ValidationMark. Always true for types that do not
	// track validation.
	Validated bool `json:"validated"`

	// Shard is the shard the object was read from. Replicated types report the
	// leader unless the read was routed by shard key.
	Shard int `json:"shard"`
}

// New reports whether the object was inserted by the call that returned it.
func (o *Object) New() bool {
	return o.Provenance == NewlyInserted
}

// Available reports whether the object already existed with a completed
// computation behind it, so callers can skip recomputing it.
func (o *Object) Available() bool {
	return o.Provenance == DeserializedExisting && o.Validated
}

// Clone returns a copy with an independent payload map.
func (o *Object) Clone() *Object {
	cp := *o
	cp.Payload = o.Payload.Clone()
	return &cp
}

// String implements fmt.Stringer.
func (o *Object) String() string {
	return fmt.Sprintf("%s#%d(%s)", o.Type, o.StoreID, o.Provenance)
}
