package transfer

import (
	"github.com/unifabric/fabric-base/memreg"
)

// RequestID is a pool-table handle of a request. Fragments reference their
// parent by ID rather than by pointer: the parent outlives every fragment it
// spawned, and the pool table is the only resolver.
type RequestID uint32

// NilRequest is the zero handle.
const NilRequest RequestID = 0

type Flags uint8

const (
	// FlagRndvFrag marks a request which is a fragment of a pipelined
	// rendezvous transfer.
	FlagRndvFrag Flags = 1 << 0
)

// Stage is the progress stage of a request.
type Stage uint8

const (
	StageInit Stage = iota
	StageSend
	StageAck
	StageDone
	StageAborted
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageSend:
		return "send"
	case StageAck:
		return "ack"
	case StageDone:
		return "done"
	case StageAborted:
		return "aborted"
	}
	return "unknown"
}

// Remote holds the rendezvous parameters of the peer side.
type Remote struct {
	// ReqID is the peer's handle of the operation, echoed back in
	// acknowledgments.
	ReqID uint64
	// Address is the base address in the peer's registered segment.
	Address uint64
	// Rkey authorizes access to the peer's segment. Owned by the request;
	// fragments borrow the parent's key.
	Rkey *memreg.Rkey
	// Offset of this request's data within the whole logical transfer.
	Offset uint64
}

// State is the mutable progress state of a request.
type State struct {
	Stage         Stage
	CompletedSize uint64
	SendAck       bool
	IssuedFrags   uint32
}

// Request is one transfer operation: either a parent (a whole logical
// transfer) or a fragment of a pipelined one.
type Request struct {
	ID       RequestID
	ParentID RequestID
	Flags    Flags

	Iter   Iter
	Remote Remote
	State  State

	// Config is the protocol configuration chosen by the selection
	// framework. Opaque to this package.
	Config interface{}

	// OnComplete delivers the final result. Set by the creator of the
	// request; invoked at most once.
	OnComplete func(err error)

	completed bool
}

// IsFrag reports whether the request is a fragment of a pipelined transfer.
func (r *Request) IsFrag() bool {
	return r.Flags&FlagRndvFrag != 0
}

// Complete finishes the request with the given result, exactly once; repeated
// calls are ignored. A nil err moves the request to StageDone, a non-nil one
// to StageAborted.
func (r *Request) Complete(err error) {
	if r.completed {
		return
	}
	r.completed = true
	if err != nil {
		r.State.Stage = StageAborted
	} else {
		r.State.Stage = StageDone
	}
	if r.OnComplete != nil {
		r.OnComplete(err)
	}
}

// Completed reports whether Complete has been called.
func (r *Request) Completed() bool {
	return r.completed
}
