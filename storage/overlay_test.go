package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverlaySatisfiesDatabase(t *testing.T) {
	exerciseDatabase(t, NewOverlay(NewMemDB()))
}

func TestOverlayBuffersUntilFlush(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, base.Put([]byte("a/2"), []byte("two")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Put([]byte("a/3"), []byte("three")))
	require.NoError(t, overlay.Delete([]byte("a/1")))
	require.Equal(t, 2, overlay.Pending())

	_, err := base.Get([]byte("a/3"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = overlay.Get([]byte("a/1"))
	require.ErrorIs(t, err, ErrNotFound)
	ok, err := overlay.Has([]byte("a/1"))
	require.NoError(t, err)
	require.False(t, ok)

	var keys []string
	require.NoError(t, overlay.Iterate([]byte("a/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"a/2", "a/3"}, keys)

	require.NoError(t, overlay.Flush())
	require.Zero(t, overlay.Pending())
	got, err := base.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), got)
	_, err = base.Get([]byte("a/1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOverlayDiscardLeavesBaseUntouched(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("k"), []byte("v")))
	before, err := ComputeDigest(base, nil)
	require.NoError(t, err)

	overlay := NewOverlay(base)
	batch := NewBatch()
	batch.Put([]byte("k"), []byte("changed"))
	batch.Put([]byte("new"), []byte("x"))
	require.NoError(t, overlay.Write(batch))
	overlay.Discard()

	got, err := overlay.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
	after, err := ComputeDigest(base, nil)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
