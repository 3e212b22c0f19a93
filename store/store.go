// Package store defines the persistence capability boundary the pack
// handler and graph resolver are built against: references, objects, and
// merge requests for a monorepo-oriented object graph.
package store

import (
	"errors"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
	"github.com/abstractgit/monocore/packfile"
)

var (
	// ErrObjectNotFound is returned when a requested object does not
	// exist in the store.
	ErrObjectNotFound = errors.New("object not found")

	// ErrRefNotFound is returned when a requested reference does not
	// exist in the store.
	ErrRefNotFound = errors.New("reference not found")

	// ErrUnavailable names a failure of the store's backing medium
	// (disk/network). Neither memstore nor boltstore returns it: boltstore
	// wraps the underlying bbolt error instead.
	ErrUnavailable = errors.New("store unavailable")

	// ErrMRNotFound is returned when a requested merge request does not
	// exist.
	ErrMRNotFound = errors.New("merge request not found")
)

// Reference is the latest-known advertised state for a subpath: the
// commit it points at, the commit's tree (cached alongside so callers
// don't need a round trip just to get it), and whether this is the
// synthetic default branch.
type Reference struct {
	Path        string
	CommitHash  hash.Oid
	TreeHash    hash.Oid
	Default     bool
	BranchName  string
}

// MRState is one of the three persisted merge-request states. The
// fourth state the state machine describes, None, is the absence of any
// stored MergeRequest for a path — it has no corresponding value here.
type MRState int

const (
	MRStateOpen MRState = iota
	MRStateClosed
	MRStateMerged
)

// String renders the state exactly as the external MR contract surface
// expects: lowercase, no prefix.
func (s MRState) String() string {
	switch s {
	case MRStateOpen:
		return "open"
	case MRStateClosed:
		return "closed"
	case MRStateMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// Comment is one entry in a merge request's comment thread. ActorID 0 is
// reserved for system-generated comments (force-update, conflict,
// multi-commit) so they're distinguishable from human review comments
// added through the external review UI.
type Comment struct {
	ActorID int64
	Text    string
}

// SystemActorID is the actor id system-generated comments are recorded
// under.
const SystemActorID int64 = 0

// MergeRequest is the monorepo-subpath push workflow's persisted state.
type MergeRequest struct {
	ID        string
	Path      string
	FromHash  hash.Oid
	ToHash    hash.Oid
	State     MRState
	Comments  []Comment
}

// Store is the capability boundary every pack-handler and graph-resolver
// operation is built against. Implementations must make write operations
// idempotent under hash identity, and MR operations serializable per
// path.
type Store interface {
	// GetRef returns the latest-known reference for path, if any.
	GetRef(path string) (Reference, bool, error)
	// SaveRef atomically replaces the reference for path.
	SaveRef(path string, commitHash, treeHash hash.Oid, opts ...RefOption) error

	// GetCommit returns the commit with the given id, if stored.
	GetCommit(id hash.Oid) (*object.Commit, bool, error)
	// GetCommits returns every commit found among ids, in any order;
	// missing ids are simply absent from the result.
	GetCommits(ids []hash.Oid) ([]*object.Commit, error)

	// GetTree returns the tree with the given id, if stored.
	GetTree(id hash.Oid) (*object.Tree, bool, error)
	// GetTrees returns every tree found among ids, in any order.
	GetTrees(ids []hash.Oid) ([]*object.Tree, error)

	// GetAllBlobHashes returns the id of every blob in the store. Used
	// only by the full-pack path.
	GetAllBlobHashes() ([]hash.Oid, error)
	// GetAllTrees returns every tree in the store. Used only by the
	// full-pack path.
	GetAllTrees() ([]*object.Tree, error)
	// GetAllCommits returns every commit in the store. Used only by the
	// full-pack path.
	GetAllCommits() ([]*object.Commit, error)
	// GetAllTags returns every tag in the store.
	GetAllTags() ([]*object.Tag, error)

	// RawBlobsByHash returns the raw content of every blob found among
	// ids, batched into a single call.
	RawBlobsByHash(ids []hash.Oid) (map[hash.Oid][]byte, error)

	// SaveEntries persists a batch of decoded pack entries. Re-saving an
	// object whose hash already exists is a no-op.
	SaveEntries(entries []packfile.Entry) error

	// OpenMRForPath returns the open merge request for path, if any.
	OpenMRForPath(path string) (*MergeRequest, bool, error)
	// CreateMR creates a new, Open merge request for path.
	CreateMR(path string, fromHash, toHash hash.Oid) (*MergeRequest, error)
	// SaveMR persists mr's current state, replacing any prior state for
	// its id.
	SaveMR(mr *MergeRequest) error
	// UpdateMR is an alias of SaveMR used at call sites that are
	// conceptually updating rather than creating, mirroring the
	// distinct names the original contract surface gives both.
	UpdateMR(mr *MergeRequest) error
	// AddMRComment appends a comment to the merge request with the given
	// id.
	AddMRComment(mrID string, actorID int64, text string) error
}

// RefOption customizes a SaveRef call.
type RefOption func(*Reference)

// WithDefaultBranch marks the saved reference as the synthetic default
// branch, carrying the canonical branch name advertised to clients.
func WithDefaultBranch(branchName string) RefOption {
	return func(r *Reference) {
		r.Default = true
		r.BranchName = branchName
	}
}
