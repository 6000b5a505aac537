package tuning

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/unifabric/fabric-base/profiledb"
	"github.com/unifabric/fabric-base/profiledb/table"
	"github.com/unifabric/fabric-base/proto"
)

// Store keeps selection snapshots in a key-value database, one record per
// selection parameters.
type Store struct {
	db profiledb.Store

	table struct {
		Records profiledb.Store `table:"r"`
	}
}

// NewStore over the given database.
func NewStore(db profiledb.Store) *Store {
	s := &Store{db: db}
	table.MigrateTables(&s.table, db)
	return s
}

// Close leaves the underlying database to its owner.
func (s *Store) Close() error {
	table.MigrateTables(&s.table, nil)
	return nil
}

// Save snapshots a finished selection.
func (s *Store) Save(param proto.SelectParam, elem *proto.SelectElem) error {
	rec := Snapshot(param, elem)
	buf, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return errors.Wrap(err, "encode tuning record")
	}
	key := param.Fingerprint()
	return s.table.Records.Put(key.Bytes(), buf)
}

// Get reads the snapshot for the parameters, nil when absent.
func (s *Store) Get(param proto.SelectParam) (*Record, error) {
	key := param.Fingerprint()
	buf, err := s.table.Records.Get(key.Bytes())
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	rec := &Record{}
	if err := rlp.DecodeBytes(buf, rec); err != nil {
		return nil, errors.Wrap(err, "decode tuning record")
	}
	return rec, nil
}

// ForEach calls fn for every stored record until fn returns false.
func (s *Store) ForEach(fn func(*Record) bool) error {
	it := s.table.Records.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		rec := &Record{}
		if err := rlp.DecodeBytes(it.Value(), rec); err != nil {
			return errors.Wrap(err, "decode tuning record")
		}
		if !fn(rec) {
			break
		}
	}
	return it.Error()
}

// WarmStart preloads the selector cache with every stored selection. Records
// which no longer restore, e.g. after a protocol set change, are dropped.
func WarmStart(s *Store, sel *proto.Selector) (int, error) {
	var restored int
	var stale []proto.SelectParam
	err := s.ForEach(func(rec *Record) bool {
		elem, err := rec.Restore(sel)
		if err != nil {
			stale = append(stale, rec.Param())
			return true
		}
		sel.Preload(rec.Param(), elem)
		restored++
		return true
	})
	if err != nil {
		return restored, err
	}
	for _, param := range stale {
		key := param.Fingerprint()
		if err := s.table.Records.Delete(key.Bytes()); err != nil {
			return restored, err
		}
	}
	return restored, nil
}
