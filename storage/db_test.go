package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBBasicOps(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("a")))
	ok, err = db.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDBIterateOrderedPrefix(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("inv/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("inv/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("other/z"), []byte("9")))

	var keys []string
	require.NoError(t, db.Iterate([]byte("inv/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"inv/a", "inv/b"}, keys)

	// Early termination.
	keys = keys[:0]
	require.NoError(t, db.Iterate([]byte("inv/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return false
	}))
	require.Equal(t, []string{"inv/a"}, keys)
}

func TestMemDBValueCopies(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(filepath.Join(dir, "data"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("esc/1"), []byte("one")))
	require.NoError(t, db.Put([]byte("esc/2"), []byte("two")))

	got, err := db.Get([]byte("esc/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), got)

	_, err = db.Get([]byte("esc/404"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	var count int
	require.NoError(t, db.Iterate([]byte("esc/"), func(_, _ []byte) bool {
		count++
		return true
	}))
	require.Equal(t, 2, count)

	require.NoError(t, db.Delete([]byte("esc/1")))
	ok, err := db.Has([]byte("esc/1"))
	require.NoError(t, err)
	require.False(t, ok)
}
