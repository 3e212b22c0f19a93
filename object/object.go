// Package object contains methods and types to work with the four DVCS
// object kinds: commit, tree, blob, and tag.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/abstractgit/monocore/internal/hash"
)

var (
	// ErrObjectUnknown is returned when encountering an unrecognized object
	// type.
	ErrObjectUnknown = errors.New("invalid object type")

	// ErrMalformed is returned when a stored or inbound object cannot be
	// parsed. It is the core boundary error named `MalformedObject` in the
	// spec.
	ErrMalformed = errors.New("malformed object")

	// ErrTreeInvalid is returned when parsing an invalid tree object.
	ErrTreeInvalid = fmt.Errorf("invalid tree: %w", ErrMalformed)

	// ErrCommitInvalid is returned when parsing an invalid commit object.
	ErrCommitInvalid = fmt.Errorf("invalid commit: %w", ErrMalformed)

	// ErrTagInvalid is returned when parsing an invalid tag object.
	ErrTagInvalid = fmt.Errorf("invalid tag: %w", ErrMalformed)

	// ErrSignatureInvalid is returned when an author/committer/tagger
	// signature cannot be parsed.
	ErrSignatureInvalid = fmt.Errorf("invalid signature: %w", ErrMalformed)
)

// Type represents the type of an object, as stored in a packfile entry
// header. The numbering matches the packfile wire format: 5 is reserved,
// 6 and 7 are the two delta kinds.
type Type int8

// The object kinds the core understands.
const (
	TypeCommit Type = 1
	TypeTree   Type = 2
	TypeBlob   Type = 3
	TypeTag    Type = 4
	// 5 is reserved by the wire format.
	TypeOfsDelta Type = 6
	TypeRefDelta Type = 7
)

// String returns the wire/text name of the type.
func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case TypeOfsDelta:
		return "ofs-delta"
	case TypeRefDelta:
		return "ref-delta"
	default:
		return fmt.Sprintf("unknown(%d)", int8(t))
	}
}

// IsValid returns whether t is one of the known object types.
func (t Type) IsValid() bool {
	switch t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag, TypeOfsDelta, TypeRefDelta:
		return true
	default:
		return false
	}
}

// IsDelta returns whether t is one of the two delta encodings.
func (t Type) IsDelta() bool {
	return t == TypeOfsDelta || t == TypeRefDelta
}

// TypeFromString returns a Type from its text representation. Only the
// four persistable kinds have a text form; deltas never do (they never
// leave the pack codec).
func TypeFromString(t string) (Type, error) {
	switch t {
	case "commit":
		return TypeCommit, nil
	case "tree":
		return TypeTree, nil
	case "blob":
		return TypeBlob, nil
	case "tag":
		return TypeTag, nil
	default:
		return 0, ErrObjectUnknown
	}
}

// Object is a generic, type-tagged bag of bytes: the common representation
// shared by all four object kinds before/after it is interpreted as a
// Commit, Tree, Blob, or Tag.
type Object struct {
	id      hash.Oid
	typ     Type
	content []byte
}

// New creates a new Object of the given type, computing and caching its id.
func New(typ Type, content []byte) *Object {
	o := &Object{typ: typ, content: content}
	o.id = hash.Sum(o.header())
	return o
}

// NewWithID creates a new Object whose id is already known (e.g. read back
// from the store or a packfile, where the id was attached out of band).
func NewWithID(id hash.Oid, typ Type, content []byte) *Object {
	return &Object{id: id, typ: typ, content: content}
}

// ID returns the object's id.
func (o *Object) ID() hash.Oid {
	return o.id
}

// Type returns the object's Type.
func (o *Object) Type() Type {
	return o.typ
}

// Size returns the size, in bytes, of the object's content.
func (o *Object) Size() int {
	return len(o.content)
}

// Bytes returns the object's content (without the "type size\0" header).
func (o *Object) Bytes() []byte {
	return o.content
}

// header builds the "{type} {size}\0" prefix followed by the content:
// the exact bytes whose hash is the object's id.
func (o *Object) header() []byte {
	w := new(bytes.Buffer)
	w.WriteString(o.typ.String())
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(o.Size()))
	w.WriteByte(0)
	w.Write(o.content)
	return w.Bytes()
}

// Parse decodes bytes as an object of the given kind, validating it eagerly
// so malformed commits/trees/tags never make it into the store.
func Parse(typ Type, content []byte) (*Object, error) {
	o := New(typ, content)
	switch typ {
	case TypeCommit:
		if _, err := o.AsCommit(); err != nil {
			return nil, err
		}
	case TypeTree:
		if _, err := o.AsTree(); err != nil {
			return nil, err
		}
	case TypeTag:
		if _, err := o.AsTag(); err != nil {
			return nil, err
		}
	case TypeBlob:
		// blobs have no internal structure to validate
	default:
		return nil, fmt.Errorf("%s: %w", typ, ErrObjectUnknown)
	}
	return o, nil
}

// AsBlob interprets the object as a Blob.
func (o *Object) AsBlob() *Blob {
	return NewBlob(o)
}

// AsTree interprets the object as a Tree.
func (o *Object) AsTree() (*Tree, error) {
	if o.typ != TypeTree {
		return nil, fmt.Errorf("type %s is not a tree: %w", o.typ, ErrMalformed)
	}
	entries, err := ParseTreeEntries(o.content)
	if err != nil {
		return nil, err
	}
	return &Tree{rawObject: o, entries: entries}, nil
}

// AsCommit interprets the object as a Commit.
func (o *Object) AsCommit() (*Commit, error) {
	if o.typ != TypeCommit {
		return nil, fmt.Errorf("type %s is not a commit: %w", o.typ, ErrMalformed)
	}
	return parseCommit(o)
}

// AsTag interprets the object as a Tag.
func (o *Object) AsTag() (*Tag, error) {
	if o.typ != TypeTag {
		return nil, fmt.Errorf("type %s is not a tag: %w", o.typ, ErrMalformed)
	}
	return parseTag(o)
}
