package object

import "github.com/abstractgit/monocore/internal/hash"

// Blob represents an opaque byte sequence: a file's content, with no
// internal structure.
type Blob struct {
	rawObject *Object
}

// NewBlob wraps a raw Object as a Blob. The object's type is assumed to
// already be TypeBlob; callers go through Object.AsBlob().
func NewBlob(o *Object) *Blob {
	return &Blob{rawObject: o}
}

// NewBlobFromContent creates a new Blob from its content, computing the id.
func NewBlobFromContent(content []byte) *Blob {
	return &Blob{rawObject: New(TypeBlob, content)}
}

// ID returns the blob's id.
func (b *Blob) ID() hash.Oid {
	return b.rawObject.ID()
}

// Bytes returns the blob's content.
func (b *Blob) Bytes() []byte {
	return b.rawObject.Bytes()
}

// Size returns the size, in bytes, of the blob's content.
func (b *Blob) Size() int {
	return b.rawObject.Size()
}

// ToObject returns the Blob's underlying Object.
func (b *Blob) ToObject() *Object {
	return b.rawObject
}
