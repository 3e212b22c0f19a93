package object

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/internal/readutil"
)

// Mode represents the mode of an entry inside a tree.
type Mode int32

// The five canonical modes the wire protocol uses. 100664/100640 are not
// distinct modes; they normalize to ModeFile on read (see ParseTreeEntries).
const (
	ModeDirectory  Mode = 0o40000
	ModeFile       Mode = 0o100644
	ModeExecutable Mode = 0o100755
	ModeSymLink    Mode = 0o120000
	ModeGitLink    Mode = 0o160000
)

// IsValid returns whether m is one of the canonical modes.
func (m Mode) IsValid() bool {
	switch m {
	case ModeDirectory, ModeFile, ModeExecutable, ModeSymLink, ModeGitLink:
		return true
	default:
		return false
	}
}

// ObjectType returns the kind of object a tree entry with this mode points
// at. A gitlink (submodule) entry requires no local object at all; it is
// reported as TypeCommit since that's what it names on the remote side.
func (m Mode) ObjectType() Type {
	switch m {
	case ModeDirectory:
		return TypeTree
	case ModeGitLink:
		return TypeCommit
	default:
		return TypeBlob
	}
}

// TreeEntry is one (mode, name, id) triplet inside a Tree.
type TreeEntry struct {
	Name string
	ID   hash.Oid
	Mode Mode
}

// Tree is an ordered sequence of entries, sorted by name in the canonical
// byte order the wire protocol expects; that order is preserved verbatim
// on parse-then-serialize round trips.
type Tree struct {
	rawObject *Object
	entries   []TreeEntry
}

// NewTree builds a new Tree from the given entries. Entries are expected
// to already be in canonical (name-sorted) order; NewTree does not sort
// them, mirroring the wire format's "ordering must be preserved" rule: the
// caller is the one who knows the order objects were walked in.
func NewTree(entries []TreeEntry) *Tree {
	t := &Tree{entries: entries}
	t.rawObject = t.ToObject()
	return t
}

// ParseTreeEntries decodes the binary entry stream of a tree object. Each
// entry is "{octal mode} {name}\0{20-byte id}", repeated back to back.
// Modes outside the canonical set fail with ErrTreeInvalid, except 100664
// and 100640 (group-writable masks some peers record) which normalize
// silently to ModeFile. A tree with two entries sharing a name fails.
func ParseTreeEntries(data []byte) ([]TreeEntry, error) {
	entries := []TreeEntry{}
	seen := make(map[string]struct{})

	offset := 0
	for i := 1; offset < len(data); i++ {
		modeBytes := readutil.ReadTo(data[offset:], ' ')
		if len(modeBytes) == 0 {
			return nil, fmt.Errorf("could not retrieve the mode of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += len(modeBytes) + 1 // +1 for the space

		mode, err := normalizeMode(modeBytes)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		name := readutil.ReadTo(data[offset:], 0)
		if name == nil {
			return nil, fmt.Errorf("could not retrieve the name of entry %d: %w", i, ErrTreeInvalid)
		}
		offset += len(name) + 1 // +1 for the NUL

		if offset+hash.Size > len(data) {
			return nil, fmt.Errorf("not enough space for the id of entry %d: %w", i, ErrTreeInvalid)
		}
		id, err := hash.FromHex(data[offset : offset+hash.Size])
		if err != nil {
			return nil, fmt.Errorf("invalid id for entry %d: %w", i, ErrTreeInvalid)
		}
		offset += hash.Size

		strName := string(name)
		if _, dup := seen[strName]; dup {
			return nil, fmt.Errorf("duplicate entry name %q: %w", strName, ErrTreeInvalid)
		}
		seen[strName] = struct{}{}

		entries = append(entries, TreeEntry{Mode: mode, Name: strName, ID: id})
	}
	return entries, nil
}

// normalizeMode parses the ASCII octal mode token, normalizing the two
// group-writable regular-file variants to ModeFile.
func normalizeMode(b []byte) (Mode, error) {
	switch string(b) {
	case "100664", "100640":
		return ModeFile, nil
	}
	v, err := strconv.ParseInt(string(b), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", string(b), ErrTreeInvalid)
	}
	m := Mode(v)
	if !m.IsValid() {
		return 0, fmt.Errorf("unsupported mode %q: %w", string(b), ErrTreeInvalid)
	}
	return m, nil
}

// Entries returns a copy of the tree's entries, in their on-disk
// (name-sorted) order.
func (t *Tree) Entries() []TreeEntry {
	out := make([]TreeEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ID returns the tree object's id.
func (t *Tree) ID() hash.Oid {
	return t.rawObject.ID()
}

// ToObject serializes the tree back to its binary entry stream and wraps
// it as an Object. Because entries are emitted in exactly the order they
// were parsed/built in, parse-then-serialize is the identity on the wire
// bytes.
func (t *Tree) ToObject() *Object {
	if t.rawObject != nil {
		return t.rawObject
	}
	buf := new(bytes.Buffer)
	for _, e := range t.entries {
		buf.WriteString(strconv.FormatInt(int64(e.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID.Bytes())
	}
	t.rawObject = New(TypeTree, buf.Bytes())
	return t.rawObject
}
