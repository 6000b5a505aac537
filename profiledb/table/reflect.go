package table

import (
	"bytes"
	"errors"
	"reflect"

	"github.com/unifabric/fabric-base/profiledb"
)

// forEachTagged visits every struct field of *s carrying a `table` tag.
// Fields tagged "-" are managed by the embedder; they are visited only when
// manual is set.
func forEachTagged(s interface{}, manual bool, fn func(prefix string, field reflect.Value) error) error {
	value := reflect.ValueOf(s).Elem()
	for _, f := range reflect.VisibleFields(value.Type()) {
		prefix := f.Tag.Get("table")
		if prefix == "" || (prefix == "-" && !manual) {
			continue
		}
		if err := fn(prefix, value.FieldByIndex(f.Index)); err != nil {
			return err
		}
	}
	return nil
}

// MigrateTables points the tagged fields of *s at prefixed tables over db.
// A nil db zeroes the fields instead.
func MigrateTables(s interface{}, db profiledb.Store) {
	var keys uniqKeys
	_ = forEachTagged(s, false, func(prefix string, field reflect.Value) error {
		if db == nil {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		keys.Add(prefix)
		field.Set(reflect.ValueOf(New(db, []byte(prefix))))
		return nil
	})
	if err := keys.Check(); err != nil {
		panic(err)
	}
}

// OpenTables points the tagged fields of *s at databases opened through the
// producer, named baseName/prefix.
func OpenTables(s interface{}, producer profiledb.DBProducer, baseName string) error {
	var keys uniqKeys
	err := forEachTagged(s, false, func(prefix string, field reflect.Value) error {
		keys.Add(prefix)
		db, err := producer.OpenDB(baseName + "/" + prefix)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(db))
		return nil
	})
	if err != nil {
		return err
	}
	return keys.Check()
}

// CloseTables closes the stores the tagged fields of *s point at, manually
// managed ones included, skipping nil ones.
func CloseTables(s interface{}) error {
	return forEachTagged(s, true, func(_ string, field reflect.Value) error {
		if field.IsNil() {
			return nil
		}
		return field.Interface().(profiledb.Store).Close()
	})
}

// uniqKeys rejects table prefixes which collide when truncated to the
// shortest prefix length, since such tables would overlap in the key space.
type uniqKeys struct {
	len  int
	keys [][]byte
}

func (u *uniqKeys) Add(s string) {
	key := []byte(s)
	if len(u.keys) == 0 || u.len > len(key) {
		u.len = len(key)
	}
	u.keys = append(u.keys, key)
}

func (u *uniqKeys) Check() error {
	for i := 0; i < len(u.keys); i++ {
		for j := i + 1; j < len(u.keys); j++ {
			if bytes.Equal(u.keys[i][:u.len], u.keys[j][:u.len]) {
				return errors.New("prefixes '" + string(u.keys[i]) + "' and '" + string(u.keys[j]) + "' overlap")
			}
		}
	}
	return nil
}
