package memorydb

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabasePutGet(t *testing.T) {
	require := require.New(t)
	db := New()

	ok, err := db.Has([]byte("a"))
	require.NoError(err)
	require.False(ok)

	require.NoError(db.Put([]byte("a"), []byte{1}))
	require.NoError(db.Put([]byte("b"), []byte{2}))

	ok, err = db.Has([]byte("a"))
	require.NoError(err)
	require.True(ok)

	val, err := db.Get([]byte("b"))
	require.NoError(err)
	require.Equal([]byte{2}, val)

	require.NoError(db.Delete([]byte("a")))
	ok, err = db.Has([]byte("a"))
	require.NoError(err)
	require.False(ok)

	require.Equal(1, db.Len())
}

func TestDatabaseIterator(t *testing.T) {
	require := require.New(t)
	db := New()

	r := rand.New(rand.NewSource(0))
	expect := make(map[string][]byte)
	for i := 0; i < 100; i++ {
		key := make([]byte, 1+r.Intn(8))
		r.Read(key)
		val := make([]byte, 1+r.Intn(16))
		r.Read(val)
		expect[string(key)] = val
		require.NoError(db.Put(key, val))
	}

	var prev []byte
	got := 0
	it := db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		if prev != nil {
			require.True(bytes.Compare(prev, it.Key()) < 0)
		}
		prev = append(prev[:0], it.Key()...)
		require.Equal(expect[string(it.Key())], it.Value())
		got++
	}
	require.NoError(it.Error())
	require.Equal(len(expect), got)
}

func TestDatabaseIteratorPrefixStart(t *testing.T) {
	require := require.New(t)
	db := New()

	for _, key := range []string{"aa", "ab", "ac", "ba", "bb"} {
		require.NoError(db.Put([]byte(key), []byte(key)))
	}

	var keys []string
	it := db.NewIterator([]byte("a"), []byte("b"))
	defer it.Release()
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal([]string{"ab", "ac"}, keys)
}

func TestDatabaseBatch(t *testing.T) {
	require := require.New(t)
	db := New()

	require.NoError(db.Put([]byte("doomed"), []byte{0}))

	b := db.NewBatch()
	require.NoError(b.Put([]byte("x"), []byte{1}))
	require.NoError(b.Put([]byte("y"), []byte{2}))
	require.NoError(b.Delete([]byte("doomed")))
	require.Equal(3, b.ValueSize())

	// nothing is applied until Write
	ok, err := db.Has([]byte("x"))
	require.NoError(err)
	require.False(ok)

	require.NoError(b.Write())

	val, err := db.Get([]byte("x"))
	require.NoError(err)
	require.Equal([]byte{1}, val)
	ok, err = db.Has([]byte("doomed"))
	require.NoError(err)
	require.False(ok)

	// replay into a fresh db
	db2 := New()
	require.NoError(b.Replay(db2))
	val, err = db2.Get([]byte("y"))
	require.NoError(err)
	require.Equal([]byte{2}, val)
}

func TestProducerReopen(t *testing.T) {
	require := require.New(t)
	p := NewProducer("")

	db1, err := p.OpenDB("one")
	require.NoError(err)
	db2, err := p.OpenDB("one")
	require.NoError(err)
	require.Equal(db1, db2)

	_, err = p.OpenDB("two")
	require.NoError(err)
	require.Equal([]string{"one", "two"}, p.Names())

	require.NoError(db1.Close())
	db1.Drop()
	require.Equal([]string{"two"}, p.Names())
}
