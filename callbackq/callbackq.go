// Package callbackq implements the progress callback queue of a worker: a
// list of callbacks dispatched from a single owning context, with a guarded
// slow path for adding and removing callbacks from other contexts.
package callbackq

import (
	"sync"
)

// ID identifies an added callback.
type ID int64

// InvalidID is never returned by Add.
const InvalidID ID = 0

// Callback is invoked on every dispatch until removed.
type Callback func()

type elem struct {
	id      ID
	cb      Callback
	oneshot bool
	removed bool
}

type asyncOp struct {
	add  *elem
	drop ID
}

// Queue dispatches registered callbacks from its owner context. Add/Remove
// are owner-context only and are safe to call from inside a callback;
// AddAsync/RemoveAsync may be called from any context and take effect at the
// start of the next dispatch.
type Queue struct {
	elems  []elem
	index  map[ID]int
	nextID ID

	mu      sync.Mutex
	pending []asyncOp
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		index: make(map[ID]int),
	}
}

func (q *Queue) push(e elem) {
	q.index[e.id] = len(q.elems)
	q.elems = append(q.elems, e)
}

// Add registers a callback. Owner context only.
func (q *Queue) Add(cb Callback) ID {
	return q.add(cb, false)
}

// AddOneshot registers a callback which removes itself after the first
// dispatch. Owner context only.
func (q *Queue) AddOneshot(cb Callback) ID {
	return q.add(cb, true)
}

func (q *Queue) add(cb Callback, oneshot bool) ID {
	q.nextID++
	id := q.nextID
	q.push(elem{id: id, cb: cb, oneshot: oneshot})
	return id
}

// Remove unregisters a callback. Owner context only; safe to call for the
// currently dispatched callback. Removing an unknown ID is a no-op.
func (q *Queue) Remove(id ID) {
	pos, ok := q.index[id]
	if !ok {
		return
	}
	q.elems[pos].removed = true
	delete(q.index, id)
}

// AddAsync registers a callback from any context. The callback starts being
// dispatched at the next Dispatch on the owner context.
func (q *Queue) AddAsync(cb Callback) ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := q.nextID
	q.pending = append(q.pending, asyncOp{add: &elem{id: id, cb: cb}})
	return id
}

// RemoveAsync unregisters a callback from any context, effective at the next
// Dispatch.
func (q *Queue) RemoveAsync(id ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, asyncOp{drop: id})
}

func (q *Queue) applyPending() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, op := range pending {
		if op.add != nil {
			q.push(*op.add)
			continue
		}
		q.Remove(op.drop)
	}
}

// Dispatch invokes every registered callback once and returns the number of
// callbacks invoked. Callbacks added synchronously during dispatch run
// starting from the next dispatch.
func (q *Queue) Dispatch() int {
	q.applyPending()
	dispatched := 0
	n := len(q.elems)
	for i := 0; i < n; i++ {
		e := &q.elems[i]
		if e.removed {
			continue
		}
		cb := e.cb
		if e.oneshot {
			q.Remove(e.id)
		}
		cb()
		dispatched++
	}
	q.compact()
	return dispatched
}

func (q *Queue) compact() {
	kept := q.elems[:0]
	for _, e := range q.elems {
		if e.removed {
			continue
		}
		q.index[e.id] = len(kept)
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.elems); i++ {
		q.elems[i] = elem{}
	}
	q.elems = kept
}

// Len is the number of registered callbacks, not counting pending async ops.
func (q *Queue) Len() int {
	return len(q.index)
}
