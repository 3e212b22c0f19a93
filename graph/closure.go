package graph

import (
	"fmt"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
	"github.com/abstractgit/monocore/packfile"
	"github.com/abstractgit/monocore/store"
)

// Enumerate produces the exact sequence of entries a pack for this
// want/have negotiation must contain, in causal/topological order:
// every want commit's tree closure (deduplicated against the have
// closure), the want commits themselves, and finally every tag that
// points directly at one of those selected commits. It is fed directly
// into packfile.Encode.
func Enumerate(s store.Store, want, have []hash.Oid) ([]packfile.Entry, error) {
	wantCommits, err := expandWantClosure(s, want, have)
	if err != nil {
		return nil, err
	}

	existing, err := existingObjectsFromHaves(s, have)
	if err != nil {
		return nil, err
	}

	var entries []packfile.Entry
	selected := make(map[hash.Oid]bool, len(wantCommits))
	for _, c := range wantCommits {
		selected[c.ID()] = true
		tree, ok, err := s.GetTree(c.TreeID())
		if err != nil {
			return nil, fmt.Errorf("could not load tree %s: %w", c.TreeID(), err)
		}
		if !ok {
			return nil, fmt.Errorf("tree %s missing from store: %w", c.TreeID(), store.ErrObjectNotFound)
		}
		treeEntries, err := traverseTree(s, tree, existing)
		if err != nil {
			return nil, err
		}
		entries = append(entries, treeEntries...)
		entries = append(entries, commitEntry(c))
	}

	tags, err := s.GetAllTags()
	if err != nil {
		return nil, fmt.Errorf("could not list tags: %w", err)
	}
	for _, t := range tags {
		if !selected[t.Target()] {
			continue
		}
		entries = append(entries, packfile.Entry{ID: t.ID(), Type: object.TypeTag, Payload: t.ToObject().Bytes()})
	}

	return entries, nil
}

// expandWantClosure seeds a frontier from want and walks parents
// backward, adding any parent not already in have or already selected.
// Parent edges point strictly backward so this always terminates.
func expandWantClosure(s store.Store, want, have []hash.Oid) ([]*object.Commit, error) {
	haveSet := make(map[hash.Oid]bool, len(have))
	for _, h := range have {
		haveSet[h] = true
	}

	commits, err := s.GetCommits(want)
	if err != nil {
		return nil, fmt.Errorf("could not load want commits: %w", err)
	}

	selected := make(map[hash.Oid]bool, len(commits))
	result := make([]*object.Commit, 0, len(commits))
	frontier := make([]*object.Commit, 0, len(commits))
	for _, c := range commits {
		if selected[c.ID()] {
			continue
		}
		selected[c.ID()] = true
		result = append(result, c)
		frontier = append(frontier, c)
	}

	for len(frontier) > 0 {
		current := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		for _, parentID := range current.ParentIDs() {
			if haveSet[parentID] || selected[parentID] {
				continue
			}
			parent, ok, err := s.GetCommit(parentID)
			if err != nil {
				return nil, fmt.Errorf("could not load parent commit %s: %w", parentID, err)
			}
			if !ok {
				return nil, fmt.Errorf("parent commit %s missing from store: %w", parentID, store.ErrObjectNotFound)
			}
			selected[parentID] = true
			result = append(result, parent)
			frontier = append(frontier, parent)
		}
	}
	return result, nil
}

// existingObjectsFromHaves seeds the existing-objects set E with every
// subtree and blob reachable from the have commits' trees.
func existingObjectsFromHaves(s store.Store, have []hash.Oid) (map[hash.Oid]bool, error) {
	existing := map[hash.Oid]bool{}
	if len(have) == 0 {
		return existing, nil
	}

	haveCommits, err := s.GetCommits(have)
	if err != nil {
		return nil, fmt.Errorf("could not load have commits: %w", err)
	}
	for _, c := range haveCommits {
		tree, ok, err := s.GetTree(c.TreeID())
		if err != nil {
			return nil, fmt.Errorf("could not load have tree %s: %w", c.TreeID(), err)
		}
		if !ok {
			continue
		}
		if err := expandTreeInto(s, tree, existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// expandTreeInto recursively adds every subtree and blob under t to the
// existing-objects set, including t itself. Submodule entries contribute
// nothing since they name no local object.
func expandTreeInto(s store.Store, t *object.Tree, existing map[hash.Oid]bool) error {
	if existing[t.ID()] {
		return nil
	}
	existing[t.ID()] = true

	for _, e := range t.Entries() {
		switch e.Mode.ObjectType() {
		case object.TypeTree:
			if existing[e.ID] {
				continue
			}
			sub, ok, err := s.GetTree(e.ID)
			if err != nil {
				return fmt.Errorf("could not load subtree %s: %w", e.ID, err)
			}
			if !ok {
				continue
			}
			if err := expandTreeInto(s, sub, existing); err != nil {
				return err
			}
		case object.TypeBlob:
			existing[e.ID] = true
		}
	}
	return nil
}

// traverseTree walks t depth-first pre-order, emitting the tree itself
// and every descendant subtree/blob not already in existing. As each
// entry is emitted, its hash is added to existing so a later want commit
// never re-emits it.
func traverseTree(s store.Store, t *object.Tree, existing map[hash.Oid]bool) ([]packfile.Entry, error) {
	var out []packfile.Entry
	if !existing[t.ID()] {
		existing[t.ID()] = true
		out = append(out, packfile.Entry{ID: t.ID(), Type: object.TypeTree, Payload: t.ToObject().Bytes()})
	}

	for _, e := range t.Entries() {
		if existing[e.ID] {
			continue
		}
		switch e.Mode.ObjectType() {
		case object.TypeTree:
			sub, ok, err := s.GetTree(e.ID)
			if err != nil {
				return nil, fmt.Errorf("could not load subtree %s: %w", e.ID, err)
			}
			if !ok {
				return nil, fmt.Errorf("subtree %s missing from store: %w", e.ID, store.ErrObjectNotFound)
			}
			sub_entries, err := traverseTree(s, sub, existing)
			if err != nil {
				return nil, err
			}
			out = append(out, sub_entries...)
		case object.TypeBlob:
			existing[e.ID] = true
			raw, err := s.RawBlobsByHash([]hash.Oid{e.ID})
			if err != nil {
				return nil, fmt.Errorf("could not load blob %s: %w", e.ID, err)
			}
			content, ok := raw[e.ID]
			if !ok {
				return nil, fmt.Errorf("blob %s missing from store: %w", e.ID, store.ErrObjectNotFound)
			}
			out = append(out, packfile.Entry{ID: e.ID, Type: object.TypeBlob, Payload: content})
		}
	}
	return out, nil
}

func commitEntry(c *object.Commit) packfile.Entry {
	return packfile.Entry{ID: c.ID(), Type: object.TypeCommit, Payload: c.ToObject().Bytes()}
}

// FullPack returns every commit, tree, blob, and tag in the store, in
// that order: the degenerate want=all-refs, have=∅ case.
func FullPack(s store.Store) ([]packfile.Entry, error) {
	var entries []packfile.Entry

	commits, err := s.GetAllCommits()
	if err != nil {
		return nil, fmt.Errorf("could not list commits: %w", err)
	}
	for _, c := range commits {
		entries = append(entries, commitEntry(c))
	}

	trees, err := s.GetAllTrees()
	if err != nil {
		return nil, fmt.Errorf("could not list trees: %w", err)
	}
	for _, t := range trees {
		entries = append(entries, packfile.Entry{ID: t.ID(), Type: object.TypeTree, Payload: t.ToObject().Bytes()})
	}

	blobHashes, err := s.GetAllBlobHashes()
	if err != nil {
		return nil, fmt.Errorf("could not list blobs: %w", err)
	}
	raw, err := s.RawBlobsByHash(blobHashes)
	if err != nil {
		return nil, fmt.Errorf("could not load blobs: %w", err)
	}
	for _, id := range blobHashes {
		entries = append(entries, packfile.Entry{ID: id, Type: object.TypeBlob, Payload: raw[id]})
	}

	tags, err := s.GetAllTags()
	if err != nil {
		return nil, fmt.Errorf("could not list tags: %w", err)
	}
	for _, t := range tags {
		entries = append(entries, packfile.Entry{ID: t.ID(), Type: object.TypeTag, Payload: t.ToObject().Bytes()})
	}

	return entries, nil
}
