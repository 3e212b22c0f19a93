package object

import (
	"bytes"
	"fmt"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/internal/readutil"
)

// CommitOptions holds the optional fields used to build a new Commit.
type CommitOptions struct {
	Message   string
	Committer Signature
	ParentIDs []hash.Oid
}

// Commit represents a point in history: a tree snapshot, zero or more
// parent commits, an author/committer pair, and a message.
type Commit struct {
	rawObject *Object

	author    Signature
	committer Signature
	message   string

	parentIDs []hash.Oid
	treeID    hash.Oid
}

// NewCommit builds a new Commit. Oids are not validated against any store;
// callers are responsible for the objects they reference actually existing.
func NewCommit(treeID hash.Oid, author Signature, opts *CommitOptions) *Commit {
	c := &Commit{
		treeID:    treeID,
		author:    author,
		committer: opts.Committer,
		message:   opts.Message,
		parentIDs: opts.ParentIDs,
	}
	if c.committer.IsZero() {
		c.committer = author
	}
	c.rawObject = c.ToObject()
	return c
}

// parseCommit decodes a commit object's body:
//
//	tree {id}
//	parent {id}         (0 or more)
//	author {signature}
//	committer {signature}
//	{blank line}
//	{message}
func parseCommit(o *Object) (*Commit, error) {
	c := &Commit{rawObject: o}
	data := o.Bytes()
	offset := 0
	for {
		line := readutil.ReadTo(data[offset:], '\n')
		if line == nil {
			return nil, fmt.Errorf("could not find end of headers: %w", ErrCommitInvalid)
		}
		offset += len(line) + 1

		if len(line) == 0 {
			if offset < len(data) {
				c.message = string(data[offset:])
			}
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed header line %q: %w", line, ErrCommitInvalid)
		}
		var err error
		switch string(kv[0]) {
		case "tree":
			c.treeID, err = hash.FromChars(kv[1])
			if err != nil {
				return nil, fmt.Errorf("invalid tree id %q: %w", kv[1], ErrCommitInvalid)
			}
		case "parent":
			oid, perr := hash.FromChars(kv[1])
			if perr != nil {
				return nil, fmt.Errorf("invalid parent id %q: %w", kv[1], ErrCommitInvalid)
			}
			c.parentIDs = append(c.parentIDs, oid)
		case "author":
			c.author, err = NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, fmt.Errorf("invalid author signature: %w", err)
			}
		case "committer":
			c.committer, err = NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, fmt.Errorf("invalid committer signature: %w", err)
			}
		}
	}

	if c.author.IsZero() {
		return nil, fmt.Errorf("commit has no author: %w", ErrCommitInvalid)
	}
	if c.committer.IsZero() {
		return nil, fmt.Errorf("commit has no committer: %w", ErrCommitInvalid)
	}
	if c.treeID.IsZero() {
		return nil, fmt.Errorf("commit has no tree: %w", ErrCommitInvalid)
	}
	return c, nil
}

// ID returns the commit's id.
func (c *Commit) ID() hash.Oid {
	return c.rawObject.ID()
}

// Author returns the signature of whoever authored the change.
func (c *Commit) Author() Signature {
	return c.author
}

// Committer returns the signature of whoever recorded the commit.
func (c *Commit) Committer() Signature {
	return c.committer
}

// Message returns the commit message.
func (c *Commit) Message() string {
	return c.message
}

// ParentIDs returns the commit's parents, in order. A root commit has
// none; a merge commit has two or more.
func (c *Commit) ParentIDs() []hash.Oid {
	out := make([]hash.Oid, len(c.parentIDs))
	copy(out, c.parentIDs)
	return out
}

// TreeID returns the id of the tree this commit points at.
func (c *Commit) TreeID() hash.Oid {
	return c.treeID
}

// ToObject serializes the commit back to its wire body and wraps it as an
// Object.
func (c *Commit) ToObject() *Object {
	if c.rawObject != nil {
		return c.rawObject
	}

	buf := new(bytes.Buffer)
	buf.WriteString("tree ")
	buf.WriteString(c.treeID.String())
	buf.WriteByte('\n')

	for _, p := range c.parentIDs {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}

	buf.WriteString("author ")
	buf.WriteString(c.author.String())
	buf.WriteByte('\n')

	buf.WriteString("committer ")
	buf.WriteString(c.committer.String())
	buf.WriteByte('\n')

	buf.WriteByte('\n')
	buf.WriteString(c.message)

	c.rawObject = New(TypeCommit, buf.Bytes())
	return c.rawObject
}
