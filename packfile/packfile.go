// Package packfile implements the wire codec for a batch of DVCS objects:
// decoding an arriving delta-compressed pack stream into a lazy sequence of
// inflated objects, and encoding a sequence of objects back into the same
// wire format.
package packfile

import (
	"errors"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
)

const (
	// headerSize is the length, in bytes, of a pack's fixed header: 4
	// bytes of magic, 4 bytes of version, 4 bytes of object count.
	headerSize = 12
	// version is the only pack version this codec produces or accepts.
	version = 2
)

func magic() []byte { return []byte{'P', 'A', 'C', 'K'} }

var (
	// ErrMalformedPack is returned for any pack framing, checksum, or
	// delta-resolution failure.
	ErrMalformedPack = errors.New("malformed pack")

	// ErrIntOverflow is returned when a varint-encoded size or offset
	// doesn't fit in a uint64.
	ErrIntOverflow = errors.New("int64 overflow")
)

// Entry is the pack codec's in-flight representation of one inflated
// object. Entries are ephemeral: they exist only for the duration of a
// transfer, never persisted as-is.
type Entry struct {
	ID      hash.Oid
	Type    object.Type
	Payload []byte
}

// ToObject wraps the entry as an Object, ready to be interpreted as a
// Commit/Tree/Blob/Tag or handed to a store.
func (e Entry) ToObject() *object.Object {
	return object.NewWithID(e.ID, e.Type, e.Payload)
}
