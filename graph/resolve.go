// Package graph implements the head-hash resolver and the want/have
// closure walker: the traversal logic that decides which objects a fetch
// needs to stream.
package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/abstractgit/monocore/config"
	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
	"github.com/abstractgit/monocore/packfile"
	"github.com/abstractgit/monocore/store"
)

// systemSignature is the author/committer recorded on synthetic
// commits the resolver materializes on the server's own behalf.
func systemSignature() object.Signature {
	return object.NewSignature("monocore", "monocore@localhost", time.Unix(0, 0).UTC())
}

// RootPath is the subpath that denotes the whole repository, never a
// synthetic subtree.
const RootPath = config.RootSubpath

// DefaultBranchName is the canonical name advertised for every synthetic
// subpath reference.
const DefaultBranchName = config.DefaultBranchName

// Ref is one advertised reference: a name, a commit hash, and whether it
// is the subpath's synthetic default branch.
type Ref struct {
	Name          string
	CommitHash    hash.Oid
	DefaultBranch bool
}

// HeadHash resolves the advertised reference set for path. An empty,
// nil-error result means the subpath is unknown to the store — the
// client receives no advertisement.
func HeadHash(s store.Store, path string) ([]Ref, error) {
	ref, ok, err := s.GetRef(path)
	if err != nil {
		return nil, fmt.Errorf("could not look up ref %s: %w", path, err)
	}
	if ok {
		return []Ref{{Name: ref.BranchName, CommitHash: ref.CommitHash, DefaultBranch: ref.Default}}, nil
	}

	rootRef, ok, err := s.GetRef(RootPath)
	if err != nil {
		return nil, fmt.Errorf("could not look up root ref: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("root reference is missing: %w", store.ErrRefNotFound)
	}

	rootCommit, ok, err := s.GetCommit(rootRef.CommitHash)
	if err != nil {
		return nil, fmt.Errorf("could not load root commit: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("root commit %s missing from store: %w", rootRef.CommitHash, store.ErrObjectNotFound)
	}

	tree, ok, err := s.GetTree(rootCommit.TreeID())
	if err != nil {
		return nil, fmt.Errorf("could not load root tree: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("root tree %s missing from store: %w", rootCommit.TreeID(), store.ErrObjectNotFound)
	}

	for _, component := range splitPath(path) {
		entry, found := findEntry(tree, component)
		if !found {
			return nil, nil
		}
		tree, ok, err = s.GetTree(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("could not load subtree %s: %w", entry.ID, err)
		}
		if !ok {
			return nil, nil
		}
	}

	synthetic := object.NewCommit(tree.ID(), systemSignature(), &object.CommitOptions{
		Message: fmt.Sprintf("synthetic reference for %s", path),
	})

	if err := s.SaveRef(path, synthetic.ID(), tree.ID(), store.WithDefaultBranch(DefaultBranchName)); err != nil {
		return nil, fmt.Errorf("could not save synthetic ref for %s: %w", path, err)
	}
	entry := packfile.Entry{ID: synthetic.ID(), Type: object.TypeCommit, Payload: synthetic.ToObject().Bytes()}
	if err := s.SaveEntries([]packfile.Entry{entry}); err != nil {
		return nil, fmt.Errorf("could not save synthetic commit for %s: %w", path, err)
	}

	return []Ref{{Name: DefaultBranchName, CommitHash: synthetic.ID(), DefaultBranch: true}}, nil
}

// splitPath breaks a subpath like "/lib/foo" into its non-root
// components ["lib", "foo"].
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// findEntry looks up a tree entry by name.
func findEntry(t *object.Tree, name string) (object.TreeEntry, bool) {
	for _, e := range t.Entries() {
		if e.Name == name {
			return e, true
		}
	}
	return object.TreeEntry{}, false
}
