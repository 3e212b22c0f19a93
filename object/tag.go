package object

import (
	"bytes"
	"fmt"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/internal/readutil"
)

// TagParams holds the data needed to create an annotated Tag.
type TagParams struct {
	Target  *Object
	Name    string
	Tagger  Signature
	Message string
}

// Tag represents an annotated tag: a named, signed pointer at another
// object (usually a commit).
type Tag struct {
	rawObject *Object

	tagger  Signature
	name    string
	message string

	target hash.Oid
	typ    Type
}

// NewTag builds a new annotated Tag pointing at the given target object.
func NewTag(p *TagParams) *Tag {
	return &Tag{
		target:  p.Target.ID(),
		typ:     p.Target.Type(),
		name:    p.Name,
		tagger:  p.Tagger,
		message: p.Message,
	}
}

// parseTag decodes a tag object's body:
//
//	object {id}
//	type {target_object_type}
//	tag {tag_name}
//	tagger {signature}
//	{blank line}
//	{message}
func parseTag(o *Object) (*Tag, error) {
	t := &Tag{rawObject: o}
	data := o.Bytes()
	offset := 0
	for {
		line := readutil.ReadTo(data[offset:], '\n')
		if line == nil {
			return nil, fmt.Errorf("could not find end of headers: %w", ErrTagInvalid)
		}
		offset += len(line) + 1

		if len(line) == 0 {
			if offset < len(data) {
				t.message = string(data[offset:])
			}
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed header line %q: %w", line, ErrTagInvalid)
		}
		var err error
		switch string(kv[0]) {
		case "object":
			t.target, err = hash.FromChars(kv[1])
			if err != nil {
				return nil, fmt.Errorf("invalid target id %q: %w", kv[1], ErrTagInvalid)
			}
		case "type":
			t.typ, err = TypeFromString(string(kv[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid target type %q: %w", kv[1], ErrTagInvalid)
			}
		case "tag":
			t.name = string(kv[1])
		case "tagger":
			t.tagger, err = NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, fmt.Errorf("invalid tagger signature: %w", err)
			}
		}
	}

	if t.tagger.IsZero() {
		return nil, fmt.Errorf("tag has no tagger: %w", ErrTagInvalid)
	}
	if t.target.IsZero() {
		return nil, fmt.Errorf("tag has no target: %w", ErrTagInvalid)
	}
	if !t.typ.IsValid() {
		return nil, fmt.Errorf("tag has no valid target type: %w", ErrTagInvalid)
	}
	return t, nil
}

// ID returns the tag's id.
func (t *Tag) ID() hash.Oid {
	return t.rawObject.ID()
}

// Target returns the id of the object the tag points at.
func (t *Tag) Target() hash.Oid {
	return t.target
}

// TargetType returns the type of the tagged object.
func (t *Tag) TargetType() Type {
	return t.typ
}

// Name returns the tag's name.
func (t *Tag) Name() string {
	return t.name
}

// Tagger returns the signature of whoever created the tag.
func (t *Tag) Tagger() Signature {
	return t.tagger
}

// Message returns the tag's message.
func (t *Tag) Message() string {
	return t.message
}

// ToObject serializes the tag back to its wire body and wraps it as an
// Object.
func (t *Tag) ToObject() *Object {
	if t.rawObject != nil {
		return t.rawObject
	}

	buf := new(bytes.Buffer)
	buf.WriteString("object ")
	buf.WriteString(t.target.String())
	buf.WriteByte('\n')

	buf.WriteString("type ")
	buf.WriteString(t.typ.String())
	buf.WriteByte('\n')

	buf.WriteString("tag ")
	buf.WriteString(t.name)
	buf.WriteByte('\n')

	buf.WriteString("tagger ")
	buf.WriteString(t.tagger.String())
	buf.WriteByte('\n')

	buf.WriteByte('\n')
	buf.WriteString(t.message)

	t.rawObject = New(TypeTag, buf.Bytes())
	return t.rawObject
}
