// Package memorydb implements the key-value database layer based on a sorted
// in-memory map.
package memorydb

import (
	"bytes"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/unifabric/fabric-base/profiledb"
)

// Database is an ephemeral key-value store. Apart from basic data storage
// functionality it also supports batch writes and iterating over the keyspace in
// binary-alphabetical order.
type Database struct {
	tree *redblacktree.Tree
	lock sync.RWMutex

	onDrop func()
}

func byteComparator(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

// New returns a sorted in-memory store with all the required database
// interface methods implemented.
func New() *Database {
	return &Database{
		tree: redblacktree.NewWith(byteComparator),
	}
}

// NewWithDrop is the same as New, but defines onDrop callback.
func NewWithDrop(drop func()) *Database {
	db := New()
	db.onDrop = drop
	return db
}

// Close deallocates the internal map and ensures any consecutive data access op
// fails with an error.
func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.tree = nil
	return nil
}

// Drop whole database.
func (db *Database) Drop() {
	if db.tree != nil {
		panic("Close database first!")
	}
	if db.onDrop != nil {
		db.onDrop()
	}
}

// Has retrieves if a key is present in the key-value store.
func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return false, profiledb.ErrUnsupportedOp
	}
	_, ok := db.tree.Get(key)
	return ok, nil
}

// Get retrieves the given key if it's present in the key-value store.
func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return nil, profiledb.ErrUnsupportedOp
	}
	if entry, ok := db.tree.Get(key); ok {
		return append([]byte(nil), entry.([]byte)...), nil
	}
	return nil, nil
}

// Put inserts the given value into the key-value store.
func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return profiledb.ErrUnsupportedOp
	}
	db.tree.Put(append([]byte(nil), key...), append([]byte(nil), value...))
	return nil
}

// Delete removes the key from the key-value store.
func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return profiledb.ErrUnsupportedOp
	}
	db.tree.Remove(key)
	return nil
}

// NewBatch creates a write-only key-value store that buffers changes to its host
// database until a final write is called.
func (db *Database) NewBatch() profiledb.Batch {
	return &batch{db: db}
}

// NewIterator creates a binary-alphabetical iterator over a subset
// of database content with a particular key prefix, starting at a particular
// initial key (or after, if it does not exist).
//
// The iterator holds a snapshot of the matching pairs taken at creation time.
func (db *Database) NewIterator(prefix []byte, start []byte) profiledb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	it := &iterator{index: -1}
	if db.tree == nil {
		return it
	}
	first := append(append([]byte(nil), prefix...), start...)
	// collect the matching pairs in ascending key order
	treeIt := db.tree.Iterator()
	for treeIt.Next() {
		key := treeIt.Key().([]byte)
		if bytes.Compare(key, first) < 0 {
			continue
		}
		if !bytes.HasPrefix(key, prefix) {
			if bytes.Compare(key, prefix) > 0 {
				break
			}
			continue
		}
		it.keys = append(it.keys, append([]byte(nil), key...))
		it.values = append(it.values, append([]byte(nil), treeIt.Value().([]byte)...))
	}
	return it
}

// Stat returns a particular internal stat of the database.
func (db *Database) Stat(property string) (string, error) {
	return "", nil
}

// Compact is not meaningful for an in-memory store.
func (db *Database) Compact(start []byte, limit []byte) error {
	return nil
}

// Len returns the number of stored pairs.
func (db *Database) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return 0
	}
	return db.tree.Size()
}

/*
 * Batch
 */

type kv struct {
	key    []byte
	value  []byte
	delete bool
}

// batch is a write-only store that commits changes to its host database when
// Write is called. A batch cannot be used concurrently.
type batch struct {
	db     *Database
	writes []kv
	size   int
}

// Put inserts the given value into the batch for later committing.
func (b *batch) Put(key, value []byte) error {
	b.writes = append(b.writes, kv{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	b.size += len(value)
	return nil
}

// Delete inserts the a key removal into the batch for later committing.
func (b *batch) Delete(key []byte) error {
	b.writes = append(b.writes, kv{
		key:    append([]byte(nil), key...),
		delete: true,
	})
	b.size++
	return nil
}

// ValueSize retrieves the amount of data queued up for writing.
func (b *batch) ValueSize() int {
	return b.size
}

// Write flushes any accumulated data to the host database.
func (b *batch) Write() error {
	for _, w := range b.writes {
		var err error
		if w.delete {
			err = b.db.Delete(w.key)
		} else {
			err = b.db.Put(w.key, w.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset resets the batch for reuse.
func (b *batch) Reset() {
	b.writes = b.writes[:0]
	b.size = 0
}

// Replay replays the batch contents.
func (b *batch) Replay(w profiledb.Writer) error {
	for _, write := range b.writes {
		if write.delete {
			if err := w.Delete(write.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(write.key, write.value); err != nil {
			return err
		}
	}
	return nil
}

/*
 * Iterator
 */

type iterator struct {
	keys   [][]byte
	values [][]byte
	index  int
}

func (it *iterator) Next() bool {
	if it.index >= len(it.keys) {
		return false
	}
	it.index++
	return it.index < len(it.keys)
}

func (it *iterator) Error() error {
	return nil
}

func (it *iterator) Key() []byte {
	if it.index < 0 || it.index >= len(it.keys) {
		return nil
	}
	return it.keys[it.index]
}

func (it *iterator) Value() []byte {
	if it.index < 0 || it.index >= len(it.values) {
		return nil
	}
	return it.values[it.index]
}

func (it *iterator) Release() {
	it.keys = nil
	it.values = nil
	it.index = -1
}
