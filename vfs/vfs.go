// Package vfs exposes runtime objects as a virtual tree of directories and
// read-only files, for diagnostics and introspection.
package vfs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned for paths no registered object maps to.
var ErrNotFound = errors.New("no element at path")

// ShowFn renders a read-only file. obj is the nearest ancestor object the
// file belongs to.
type ShowFn func(obj interface{}, sb *strings.Builder)

// RefreshFn re-populates a dirty directory before it is listed.
type RefreshFn func(obj interface{})

type nodeType int

const (
	typeDir nodeType = iota
	typeROFile
	typeSubdir
)

type node struct {
	typ      nodeType
	refcount int
	dirty    bool
	obj      interface{}
	parent   *node
	children []*node
	show     ShowFn
	refresh  RefreshFn
	path     string
}

func (n *node) name() string {
	i := strings.LastIndexByte(n.path, '/')
	return n.path[i+1:]
}

func (n *node) isDir() bool {
	return n.typ == typeDir || n.typ == typeSubdir
}

// Info describes one tree entry. For directories Size is the number of
// children, for files the rendered content length.
type Info struct {
	Mode os.FileMode
	Size uint64
}

// Registry is the object tree. The zero value is not usable, construct with
// NewRegistry.
type Registry struct {
	mu     sync.Mutex
	root   *node
	byPath map[string]*node
	byObj  map[interface{}]*node
}

func NewRegistry() *Registry {
	return &Registry{
		root:   &node{typ: typeDir, refcount: 1},
		byPath: make(map[string]*node),
		byObj:  make(map[interface{}]*node),
	}
}

// AddDir registers obj as a directory at relPath under the directory of
// parentObj, or under the root when parentObj is nil. Intermediate path
// segments become unowned subdirectories.
func (r *Registry) AddDir(parentObj, obj interface{}, relPath string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.add(parentObj, typeDir, obj, fmt.Sprintf(relPath, args...))
}

// AddReadOnlyFile registers a rendered file at relPath under the directory of
// obj. The show callback receives the owning object when the file is read.
func (r *Registry) AddReadOnlyFile(obj interface{}, show ShowFn, relPath string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.add(obj, typeROFile, nil, fmt.Sprintf(relPath, args...))
	if n != nil {
		n.show = show
	}
}

// Remove unregisters the subtree of obj and prunes parent subdirectories
// left empty.
func (r *Registry) Remove(obj interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.byObj[obj]; n != nil {
		r.unref(n)
	}
}

// SetDirty arranges for refresh to run before the directory of obj is listed
// the next time.
func (r *Registry) SetDirty(obj interface{}, refresh RefreshFn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.byObj[obj]; n != nil {
		n.dirty = true
		n.refresh = refresh
	}
}

// Info resolves the entry at path.
func (r *Registry) Info(path string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lookup(path)
	if n == nil {
		return Info{}, ErrNotFound
	}
	n.refcount++
	defer r.unref(n)

	if n.typ == typeROFile {
		var sb strings.Builder
		r.readFile(n, &sb)
		return Info{Mode: 0400, Size: uint64(sb.Len())}, nil
	}
	r.refreshDir(n)
	return Info{Mode: os.ModeDir | 0500, Size: uint64(len(n.children))}, nil
}

// ReadFile renders the read-only file at path.
func (r *Registry) ReadFile(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lookup(path)
	if n == nil || n.typ != typeROFile {
		return "", ErrNotFound
	}
	n.refcount++
	defer r.unref(n)

	var sb strings.Builder
	r.readFile(n, &sb)
	return sb.String(), nil
}

// ListDir returns the child names of the directory at path.
func (r *Registry) ListDir(path string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lookup(path)
	if n == nil || !n.isDir() {
		return nil, ErrNotFound
	}
	n.refcount++
	defer r.unref(n)

	r.refreshDir(n)
	names := make([]string, 0, len(n.children))
	for _, child := range n.children {
		names = append(names, child.name())
	}
	return names, nil
}

// lookup resolves a path under the lock.
func (r *Registry) lookup(path string) *node {
	if path == "/" {
		return r.root
	}
	return r.byPath[path]
}

// add builds the node chain for relPath under the lock.
func (r *Registry) add(parentObj interface{}, typ nodeType, obj interface{}, relPath string) *node {
	parent := r.root
	if parentObj != nil {
		parent = r.byObj[parentObj]
		if parent == nil {
			return nil
		}
	}

	segments := strings.Split(relPath, "/")
	for _, seg := range segments[:len(segments)-1] {
		parent = r.create(parent, seg, typeSubdir, nil)
	}
	return r.create(parent, segments[len(segments)-1], typ, obj)
}

func (r *Registry) create(parent *node, name string, typ nodeType, obj interface{}) *node {
	path := parent.path + "/" + name
	if n := r.byPath[path]; n != nil {
		return n
	}

	n := &node{
		typ:      typ,
		refcount: 1,
		obj:      obj,
		parent:   parent,
		path:     path,
	}
	parent.children = append(parent.children, n)
	if obj != nil {
		r.byObj[obj] = n
	}
	r.byPath[path] = n
	return n
}

// unref drops one reference and removes the subtree when none remain. Empty
// parent subdirectories are pruned recursively.
func (r *Registry) unref(n *node) {
	n.refcount--
	if n.refcount > 0 {
		return
	}

	for _, child := range n.children {
		child.parent = nil // prevent children from pruning n again
		r.unref(child)
	}

	if n.obj != nil {
		delete(r.byObj, n.obj)
	}
	delete(r.byPath, n.path)

	parent := n.parent
	if parent != nil {
		for i, child := range parent.children {
			if child == n {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
		if len(parent.children) == 0 && parent.typ == typeSubdir {
			r.unref(parent)
		}
	}
}

// refreshDir runs the refresh callback with the lock dropped, so the callback
// can add and remove nodes.
func (r *Registry) refreshDir(n *node) {
	if !n.dirty {
		return
	}
	n.dirty = false
	refresh, obj := n.refresh, n.obj

	r.mu.Unlock()
	refresh(obj)
	r.mu.Lock()
}

// readFile runs the show callback with the lock dropped. The owning object is
// the nearest ancestor carrying one.
func (r *Registry) readFile(n *node, sb *strings.Builder) {
	owner := n
	for owner != nil && owner.obj == nil {
		owner = owner.parent
	}
	var obj interface{}
	if owner != nil {
		obj = owner.obj
	}
	show := n.show

	r.mu.Unlock()
	show(obj, sb)
	r.mu.Lock()
}

// Uint64Show renders the pointed-to counter, for counter files.
func Uint64Show(counter *uint64) ShowFn {
	return func(obj interface{}, sb *strings.Builder) {
		fmt.Fprintf(sb, "%d\n", *counter)
	}
}
