package transfer_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/abstractgit/monocore/config"
	"github.com/abstractgit/monocore/internal/env"
	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
	"github.com/abstractgit/monocore/packfile"
	"github.com/abstractgit/monocore/store"
	"github.com/abstractgit/monocore/store/memstore"
	"github.com/abstractgit/monocore/transfer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(s store.Store) *transfer.Handler {
	cfg := config.NewConfig(env.NewFromKVList(nil))
	return transfer.NewHandler(s, cfg, zerolog.Nop())
}

// buildPack encodes entries into a ready-to-decode packfile buffer.
func buildPack(t *testing.T, entries ...packfile.Entry) *bytes.Buffer {
	t.Helper()
	ch := make(chan packfile.Entry, len(entries))
	for _, e := range entries {
		ch <- e
	}
	close(ch)
	buf := new(bytes.Buffer)
	require.NoError(t, packfile.Encode(buf, uint32(len(entries)), ch))
	return buf
}

func commitEntry(treeID hash.Oid, message string, parents ...hash.Oid) (packfile.Entry, *object.Commit) {
	author := object.NewSignature("Jane", "jane@example.com", time.Unix(0, 0).UTC())
	c := object.NewCommit(treeID, author, &object.CommitOptions{Message: message, ParentIDs: parents})
	return packfile.Entry{ID: c.ID(), Type: object.TypeCommit, Payload: c.ToObject().Bytes()}, c
}

func treeEntry(entries []object.TreeEntry) (packfile.Entry, *object.Tree) {
	tr := object.NewTree(entries)
	return packfile.Entry{ID: tr.ID(), Type: object.TypeTree, Payload: tr.ToObject().Bytes()}, tr
}

func blobEntry(content string) (packfile.Entry, hash.Oid) {
	b := object.NewBlobFromContent([]byte(content))
	return packfile.Entry{ID: b.ID(), Type: object.TypeBlob, Payload: b.ToObject().Bytes()}, b.ID()
}

func TestPush_WholeRepoPersistsAndAdvancesRef(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)

	blobE, blobID := blobEntry("hello")
	treeE, tr := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID}})
	commitE, c := commitEntry(tr.ID(), "init")
	pack := buildPack(t, blobE, treeE, commitE)

	err := h.Push(transfer.PushRequest{Path: config.RootSubpath, ToHash: c.ID(), Pack: pack})
	require.NoError(t, err)

	ref, ok, err := s.GetRef(config.RootSubpath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID(), ref.CommitHash)
}

func TestPush_SubpathOpensNewMergeRequest(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)

	blobE, blobID := blobEntry("hello")
	treeE, tr := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID}})
	commitE, c := commitEntry(tr.ID(), "init")
	pack := buildPack(t, blobE, treeE, commitE)

	from := hash.Sum([]byte("from"))
	err := h.Push(transfer.PushRequest{Path: "/lib", FromHash: from, ToHash: c.ID(), Pack: pack})
	require.NoError(t, err)

	mr, ok, err := s.OpenMRForPath("/lib")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.MRStateOpen, mr.State)
	assert.Equal(t, from, mr.FromHash)
	assert.Equal(t, c.ID(), mr.ToHash)

	_, ok, err = s.GetRef("/lib")
	require.NoError(t, err)
	assert.False(t, ok, "subpath push must never advance the stored ref")
}

func TestPush_ForceUpdateRecordsCommentAndAdvancesToHash(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)
	from := hash.Sum([]byte("from"))

	blobE1, blobID1 := blobEntry("v1")
	treeE1, tr1 := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID1}})
	commitE1, c1 := commitEntry(tr1.ID(), "first")
	require.NoError(t, h.Push(transfer.PushRequest{Path: "/lib", FromHash: from, ToHash: c1.ID(), Pack: buildPack(t, blobE1, treeE1, commitE1)}))

	blobE2, blobID2 := blobEntry("v2")
	treeE2, tr2 := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID2}})
	commitE2, c2 := commitEntry(tr2.ID(), "second")
	require.NoError(t, h.Push(transfer.PushRequest{Path: "/lib", FromHash: from, ToHash: c2.ID(), Pack: buildPack(t, blobE2, treeE2, commitE2)}))

	mr, ok, err := s.OpenMRForPath("/lib")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c2.ID(), mr.ToHash)
	require.Len(t, mr.Comments, 1)
	assert.Equal(t, "auto-updated from "+c1.ID().ShortString(6)+" to "+c2.ID().ShortString(6), mr.Comments[0].Text)
	assert.Equal(t, store.SystemActorID, mr.Comments[0].ActorID)
}

func TestPush_ConflictingFromHashClosesMRWithoutPersisting(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)
	from1 := hash.Sum([]byte("from1"))
	from2 := hash.Sum([]byte("from2"))

	blobE1, blobID1 := blobEntry("v1")
	treeE1, tr1 := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID1}})
	commitE1, c1 := commitEntry(tr1.ID(), "first")
	require.NoError(t, h.Push(transfer.PushRequest{Path: "/lib", FromHash: from1, ToHash: c1.ID(), Pack: buildPack(t, blobE1, treeE1, commitE1)}))

	blobE2, blobID2 := blobEntry("conflicting")
	treeE2, tr2 := treeEntry([]object.TreeEntry{{Name: "b.txt", Mode: object.ModeFile, ID: blobID2}})
	commitE2, c2 := commitEntry(tr2.ID(), "conflicting")
	require.NoError(t, h.Push(transfer.PushRequest{Path: "/lib", FromHash: from2, ToHash: c2.ID(), Pack: buildPack(t, blobE2, treeE2, commitE2)}))

	mr, ok, err := s.OpenMRForPath("/lib")
	require.NoError(t, err)
	assert.False(t, ok, "conflicting push must leave no open MR")

	_, ok, err = s.GetCommit(c2.ID())
	require.NoError(t, err)
	assert.False(t, ok, "conflicting push must not persist its entries")

	_ = mr
}

func TestPush_MultiCommitPackClosesMRAfterPersisting(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)
	from := hash.Sum([]byte("from"))

	blobE, blobID := blobEntry("v")
	treeE, tr := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID}})
	firstE, first := commitEntry(tr.ID(), "first")
	secondE, second := commitEntry(tr.ID(), "second", first.ID())

	pack := buildPack(t, blobE, treeE, firstE, secondE)
	require.NoError(t, h.Push(transfer.PushRequest{Path: "/lib", FromHash: from, ToHash: second.ID(), Pack: pack}))

	_, ok, err := s.OpenMRForPath("/lib")
	require.NoError(t, err)
	assert.False(t, ok, "a multi-commit push closes its own MR immediately")

	_, ok, err = s.GetCommit(second.ID())
	require.NoError(t, err)
	assert.True(t, ok, "entries are still persisted before the multi-commit close")
}

func TestFetch_UnknownSubpathReturnsEmptyAdvertisement(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)

	blobE, blobID := blobEntry("hello")
	treeE, tr := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID}})
	commitE, c := commitEntry(tr.ID(), "init")
	require.NoError(t, s.SaveEntries([]packfile.Entry{blobE, treeE, commitE}))
	require.NoError(t, s.SaveRef(config.RootSubpath, c.ID(), tr.ID(), store.WithDefaultBranch("main")))

	refs, err := h.Fetch(transfer.FetchRequest{Path: "/nothing"}, new(bytes.Buffer))
	require.NoError(t, err)
	assert.Nil(t, refs)
}

func TestFetch_WithWantEncodesPack(t *testing.T) {
	s := memstore.New()
	h := newHandler(s)

	blobE, blobID := blobEntry("hello")
	treeE, tr := treeEntry([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, ID: blobID}})
	commitE, c := commitEntry(tr.ID(), "init")
	require.NoError(t, s.SaveEntries([]packfile.Entry{blobE, treeE, commitE}))
	require.NoError(t, s.SaveRef(config.RootSubpath, c.ID(), tr.ID(), store.WithDefaultBranch("main")))

	var out bytes.Buffer
	refs, err := h.Fetch(transfer.FetchRequest{Path: config.RootSubpath, Want: []hash.Oid{c.ID()}}, &out)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Greater(t, out.Len(), 0)

	entries, errs := packfile.Decode(&out)
	var got []hash.Oid
	for e := range entries {
		got = append(got, e.ID)
	}
	require.NoError(t, <-errs)
	assert.Contains(t, got, c.ID())
	assert.Contains(t, got, tr.ID())
	assert.Contains(t, got, blobID)
}
