package object_test

import (
	"testing"

	"github.com/abstractgit/monocore/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ComputesID(t *testing.T) {
	o := object.New(object.TypeBlob, []byte("hello world"))
	assert.False(t, o.ID().IsZero())
	assert.Equal(t, 11, o.Size())
}

func TestParse_RejectsUnknownType(t *testing.T) {
	_, err := object.Parse(object.Type(42), []byte("x"))
	require.ErrorIs(t, err, object.ErrObjectUnknown)
}

func TestParse_ValidatesTreeEagerly(t *testing.T) {
	_, err := object.Parse(object.TypeTree, []byte("not a tree"))
	require.Error(t, err)
}

func TestType_StringAndFromString(t *testing.T) {
	for _, typ := range []object.Type{object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag} {
		parsed, err := object.TypeFromString(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
}

func TestType_IsDelta(t *testing.T) {
	assert.True(t, object.TypeOfsDelta.IsDelta())
	assert.True(t, object.TypeRefDelta.IsDelta())
	assert.False(t, object.TypeBlob.IsDelta())
}

func TestAsBlob_WrongTypeStillWraps(t *testing.T) {
	o := object.New(object.TypeTree, []byte("data"))
	b := o.AsBlob()
	assert.Equal(t, []byte("data"), b.Bytes())
}
