package pebble

import (
	"os"
	"path/filepath"

	"github.com/unifabric/fabric-base/profiledb"
)

type Producer struct {
	datadir  string
	getCache func(string) int
}

// NewProducer of pebble db.
func NewProducer(datadir string, getCache func(string) int) profiledb.FullDBProducer {
	return &Producer{
		datadir:  datadir,
		getCache: getCache,
	}
}

// Names of existing databases.
func (p *Producer) Names() []string {
	var names []string

	files, err := os.ReadDir(p.datadir)
	if err != nil {
		panic(err)
	}

	for _, f := range files {
		if !f.IsDir() {
			continue
		}
		names = append(names, f.Name())
	}
	return names
}

// OpenDB or create db with name.
func (p *Producer) OpenDB(name string) (profiledb.DropableStore, error) {
	path := p.resolvePath(name)

	err := os.MkdirAll(path, 0700)
	if err != nil {
		return nil, err
	}

	onDrop := func() {
		_ = os.RemoveAll(path)
	}

	db, err := New(path, p.getCache(name), 0, nil, onDrop)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func (p *Producer) resolvePath(name string) string {
	return filepath.Join(p.datadir, name)
}
