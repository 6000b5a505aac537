package memorydb

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/unifabric/fabric-base/profiledb"
)

// Mod wraps a freshly opened store with additional behavior.
type Mod func(profiledb.DropableStore) profiledb.DropableStore

type producer struct {
	namespace string
	dbs       map[string]profiledb.DropableStore
	mods      []Mod

	sync.Mutex
}

// NewProducer of memory dbs.
func NewProducer(namespace string, mods ...Mod) profiledb.FullDBProducer {
	if namespace == "" {
		namespace = fmt.Sprintf("mem-%d", rand.Int63())
	}
	return &producer{
		namespace: namespace,
		dbs:       make(map[string]profiledb.DropableStore),
		mods:      mods,
	}
}

// Names of existing databases.
func (p *producer) Names() []string {
	p.Lock()
	defer p.Unlock()

	ls := make([]string, 0, len(p.dbs))
	for name := range p.dbs {
		ls = append(ls, name)
	}
	sort.Strings(ls)
	return ls
}

// OpenDB or create db with name.
func (p *producer) OpenDB(name string) (profiledb.DropableStore, error) {
	p.Lock()
	defer p.Unlock()

	if old, ok := p.dbs[name]; ok {
		return old, nil
	}

	var db profiledb.DropableStore = NewWithDrop(func() {
		p.Lock()
		defer p.Unlock()
		delete(p.dbs, name)
	})
	for _, mod := range p.mods {
		db = mod(db)
	}
	p.dbs[name] = db

	return db, nil
}
