package transfer

import (
	"errors"
)

// ErrNoResource is returned when the fragment pool is exhausted.
var ErrNoResource = errors.New("no request resources available")

// Pool owns the request table and bounds the number of fragments in flight.
// Parents are added by the embedder; fragments are allocated against the
// pool's capacity and returned to it on completion.
type Pool struct {
	capacity int
	frags    int
	table    map[RequestID]*Request
	nextID   RequestID
}

// NewPool creates a pool allowing up to capacity fragments in flight.
func NewPool(capacity int) *Pool {
	return &Pool{
		capacity: capacity,
		table:    make(map[RequestID]*Request),
	}
}

func (p *Pool) nextFreeID() RequestID {
	for {
		p.nextID++
		if p.nextID == NilRequest {
			continue
		}
		if _, occupied := p.table[p.nextID]; !occupied {
			return p.nextID
		}
	}
}

// Add registers an embedder-created parent request in the table.
func (p *Pool) Add(r *Request) RequestID {
	r.ID = p.nextFreeID()
	p.table[r.ID] = r
	return r.ID
}

// AllocFrag allocates a fragment bound to the parent. Fails with
// ErrNoResource when the fragment capacity is exhausted.
func (p *Pool) AllocFrag(parent *Request) (*Request, error) {
	if p.frags >= p.capacity {
		return nil, ErrNoResource
	}
	p.frags++
	freq := &Request{
		ID:       p.nextFreeID(),
		ParentID: parent.ID,
		Flags:    parent.Flags | FlagRndvFrag,
	}
	p.table[freq.ID] = freq
	return freq, nil
}

// Free removes the request from the table, returning fragment capacity.
func (p *Pool) Free(r *Request) {
	if _, ok := p.table[r.ID]; !ok {
		return
	}
	delete(p.table, r.ID)
	if r.IsFrag() {
		p.frags--
	}
}

// Get resolves a request handle. Returns nil for unknown handles.
func (p *Pool) Get(id RequestID) *Request {
	return p.table[id]
}

// FragsInFlight is the number of allocated and not yet freed fragments.
func (p *Pool) FragsInFlight() int {
	return p.frags
}
