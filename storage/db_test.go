package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
	require.NoError(t, db.Put([]byte("b/1"), []byte("other")))

	got, err := db.Get([]byte("a/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	ok, err := db.Has([]byte("a/2"))
	require.NoError(t, err)
	require.True(t, ok)

	batch := NewBatch()
	batch.Put([]byte("a/3"), []byte("three"))
	batch.Delete([]byte("a/1"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, db.Write(batch))

	var keys []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"a/2", "a/3"}, keys)

	var first []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		first = append(first, string(key))
		return false
	}))
	require.Len(t, first, 1)

	require.NoError(t, db.Delete([]byte("a/2")))
	ok, err = db.Has([]byte("a/2"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db1)
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), got)
}

func TestBoltDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	db1, err := NewBoltDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db1)
	require.NoError(t, db1.Put([]byte("empty"), []byte{}))
	db1.Close()

	db2, err := NewBoltDB(path)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), got)
	ok, err := db2.Has([]byte("empty"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	db, err := Open("bolt", dir)
	require.NoError(t, err)
	_, isBolt := db.(*BoltDB)
	require.True(t, isBolt)
	db.Close()
	require.FileExists(t, filepath.Join(dir, "state.db"))

	db, err = Open("", filepath.Join(dir, "level"))
	require.NoError(t, err)
	_, isLevel := db.(*LevelDB)
	require.True(t, isLevel)
	db.Close()

	_, err = Open("rocks", dir)
	require.Error(t, err)
}
