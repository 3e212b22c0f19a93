package memstore_test

import (
	"testing"
	"time"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
	"github.com/abstractgit/monocore/packfile"
	"github.com/abstractgit/monocore/store"
	"github.com/abstractgit/monocore/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobEntry(content string) packfile.Entry {
	o := object.New(object.TypeBlob, []byte(content))
	return packfile.Entry{ID: o.ID(), Type: o.Type(), Payload: o.Bytes()}
}

func TestSaveEntries_IsIdempotent(t *testing.T) {
	s := memstore.New()
	e := blobEntry("hello")

	require.NoError(t, s.SaveEntries([]packfile.Entry{e, e}))

	raw, err := s.RawBlobsByHash([]hash.Oid{e.ID})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw[e.ID])
}

func TestSaveRefAndGetRef(t *testing.T) {
	s := memstore.New()
	commitID := hash.Sum([]byte("commit"))
	treeID := hash.Sum([]byte("tree"))

	require.NoError(t, s.SaveRef("/lib", commitID, treeID, store.WithDefaultBranch("main")))

	ref, ok, err := s.GetRef("/lib")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, commitID, ref.CommitHash)
	assert.True(t, ref.Default)
	assert.Equal(t, "main", ref.BranchName)
}

func TestGetRef_MissingReturnsFalse(t *testing.T) {
	s := memstore.New()
	_, ok, err := s.GetRef("/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMergeRequestLifecycle(t *testing.T) {
	s := memstore.New()
	from := hash.Sum([]byte("from"))
	to := hash.Sum([]byte("to"))

	mr, err := s.CreateMR("/lib", from, to)
	require.NoError(t, err)
	assert.Equal(t, store.MRStateOpen, mr.State)

	open, ok, err := s.OpenMRForPath("/lib")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, mr.ID, open.ID)

	require.NoError(t, s.AddMRComment(mr.ID, store.SystemActorID, "auto-updated"))

	mr.State = store.MRStateClosed
	require.NoError(t, s.SaveMR(mr))

	_, ok, err = s.OpenMRForPath("/lib")
	require.NoError(t, err)
	assert.False(t, ok, "a closed MR is no longer the open MR for its path")
}

func TestGetCommits_SkipsMissingHashes(t *testing.T) {
	s := memstore.New()
	treeID := hash.Sum([]byte("tree"))
	author := object.NewSignature("Jane", "jane@example.com", time.Unix(0, 0).UTC())
	c := object.NewCommit(treeID, author, &object.CommitOptions{Message: "m"})

	entry := packfile.Entry{ID: c.ID(), Type: object.TypeCommit, Payload: c.ToObject().Bytes()}
	require.NoError(t, s.SaveEntries([]packfile.Entry{entry}))

	got, err := s.GetCommits([]hash.Oid{c.ID(), hash.Sum([]byte("missing"))})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
