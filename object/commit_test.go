package object_test

import (
	"testing"
	"time"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/abstractgit/monocore/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit_RoundTrip(t *testing.T) {
	treeID := hash.Sum([]byte("tree"))
	parentID := hash.Sum([]byte("parent"))
	author := object.NewSignature("Jane Doe", "jane@example.com", time.Unix(1_600_000_000, 0).UTC())

	c := object.NewCommit(treeID, author, &object.CommitOptions{
		Message:   "initial commit\n",
		ParentIDs: []hash.Oid{parentID},
	})

	reparsed, err := c.ToObject().AsCommit()
	require.NoError(t, err)
	assert.Equal(t, treeID, reparsed.TreeID())
	assert.Equal(t, []hash.Oid{parentID}, reparsed.ParentIDs())
	assert.Equal(t, "initial commit\n", reparsed.Message())
	assert.Equal(t, author.Name, reparsed.Author().Name)
	assert.Equal(t, author.Email, reparsed.Author().Email)
	assert.Equal(t, c.Author(), c.Committer(), "committer defaults to author when unset")
}

func TestCommit_RootCommitHasNoParents(t *testing.T) {
	treeID := hash.Sum([]byte("tree"))
	author := object.NewSignature("Jane Doe", "jane@example.com", time.Unix(1_600_000_000, 0).UTC())
	c := object.NewCommit(treeID, author, &object.CommitOptions{Message: "root"})

	reparsed, err := c.ToObject().AsCommit()
	require.NoError(t, err)
	assert.Empty(t, reparsed.ParentIDs())
}

func TestCommit_MissingTreeIsInvalid(t *testing.T) {
	body := "author Jane Doe <jane@example.com> 1600000000 +0000\ncommitter Jane Doe <jane@example.com> 1600000000 +0000\n\nmsg"
	o := object.New(object.TypeCommit, []byte(body))
	_, err := o.AsCommit()
	require.ErrorIs(t, err, object.ErrCommitInvalid)
}

func TestCommit_MissingTimezoneDefaults(t *testing.T) {
	treeID := hash.Sum([]byte("tree"))
	body := "tree " + treeID.String() + "\nauthor Jane Doe <jane@example.com> 1600000000\ncommitter Jane Doe <jane@example.com> 1600000000\n\nmsg"
	o := object.New(object.TypeCommit, []byte(body))
	c, err := o.AsCommit()
	require.NoError(t, err)
	assert.Equal(t, "+0000", c.Author().Time.Format("-0700"))
}
