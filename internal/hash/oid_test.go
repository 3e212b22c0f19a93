package hash_test

import (
	"fmt"
	"testing"

	"github.com/abstractgit/monocore/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	testCases := []struct {
		desc        string
		id          string
		expectError bool
	}{
		{
			desc:        "valid oid should work",
			id:          "0eaf966ff79d8f61958aaefe163620d952606516",
			expectError: false,
		},
		{
			desc:        "invalid char should fail",
			id:          "0eaf96 ff79d8f61958aaefe163620d952606516",
			expectError: true,
		},
		{
			desc:        "invalid size should fail",
			id:          "0eaf96ff79d8f61958aaefe163620d952606",
			expectError: true,
		},
	}
	for i, tc := range testCases {
		tc := tc
		i := i
		t.Run(fmt.Sprintf("%d/%s", i, tc.desc), func(t *testing.T) {
			t.Parallel()

			oid, err := hash.FromString(tc.id)
			if tc.expectError {
				require.ErrorIs(t, err, hash.ErrInvalidOid)
				assert.Equal(t, hash.NullOid, oid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.id, oid.String())
		})
	}
}

func TestFromHex(t *testing.T) {
	id := []byte{0x0e, 0xaf, 0x96, 0x6f, 0xf7, 0x9d, 0x8f, 0x61, 0x95, 0x8a, 0xae, 0xfe, 0x16, 0x36, 0x20, 0xd9, 0x52, 0x60, 0x65, 0x16}
	oid, err := hash.FromHex(id)
	require.NoError(t, err)
	assert.Equal(t, "0eaf966ff79d8f61958aaefe163620d952606516", oid.String())
	assert.Equal(t, id, oid.Bytes())

	_, err = hash.FromHex(id[:10])
	require.ErrorIs(t, err, hash.ErrInvalidOid)
}

func TestSum(t *testing.T) {
	oid := hash.Sum([]byte("123456789"))
	assert.Equal(t, "f7c3bc1d808e04732adf679965ccc34ca7ae3441", oid.String())
}

func TestIsZero(t *testing.T) {
	assert.True(t, hash.NullOid.IsZero())

	oid, err := hash.FromString("f7c3bc1d808e04732adf679965ccc34ca7ae3441")
	require.NoError(t, err)
	assert.False(t, oid.IsZero())
}

func TestShortString(t *testing.T) {
	oid, err := hash.FromString("f7c3bc1d808e04732adf679965ccc34ca7ae3441")
	require.NoError(t, err)
	assert.Equal(t, "f7c3bc", oid.ShortString(6))
	assert.Equal(t, oid.String(), oid.ShortString(100))
}
