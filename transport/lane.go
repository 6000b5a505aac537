// Package transport defines lanes: point-to-point channels a worker sends
// control records and zero-copy data through.
package transport

import (
	"errors"

	"github.com/unifabric/fabric-base/memreg"
)

var (
	// ErrNoResource is returned when the lane's in-flight quota is
	// exhausted; the operation may be retried on a later progress round.
	ErrNoResource = errors.New("lane is out of send resources")
	// ErrTooLong is returned when an operation exceeds the lane limits.
	ErrTooLong = errors.New("operation exceeds lane limits")
)

// AMID identifies an active-message kind. The values are defined by the
// layer above the transport.
type AMID uint8

// AMHandler consumes inbound active messages on the owner context.
type AMHandler func(id AMID, payload []byte)

// Completion is invoked on the owner context when an asynchronous operation
// fully finishes.
type Completion func(err error)

// Attrs are the performance attributes of a lane, used by the protocol cost
// model.
type Attrs struct {
	// Latency is the fixed time of one operation, seconds.
	Latency float64
	// Bandwidth in bytes per second.
	Bandwidth float64
	// Overhead is the CPU time spent issuing one operation, seconds.
	Overhead float64
	// MaxBcopy bounds a buffered-copy (active message) payload.
	MaxBcopy uint64
	// MaxZcopy bounds a single zero-copy operation.
	MaxZcopy uint64
}

// AMTime is the cost curve of sending one bcopy record of n bytes.
func (a Attrs) AMTime() (latency, perByte float64) {
	return a.Latency + a.Overhead, 1 / a.Bandwidth
}

// Lane is a unidirectional view of a channel to one peer. All inbound
// traffic and completions are delivered on the owner context, from within
// Progress.
type Lane interface {
	Attrs() Attrs

	// SetAMHandler installs the inbound active-message consumer.
	SetAMHandler(h AMHandler)

	// SendAM sends a small control record as a buffered copy. The payload
	// is copied before SendAM returns.
	SendAM(id AMID, payload []byte) error

	// PutZcopy writes data to the peer's registered memory. comp fires on
	// the owner context once the peer has observed the data.
	PutZcopy(data []byte, remoteAddr uint64, rkey *memreg.Rkey, comp Completion) error

	// GetZcopy reads from the peer's registered memory into data. comp
	// fires on the owner context once data is filled.
	GetZcopy(data []byte, remoteAddr uint64, rkey *memreg.Rkey, comp Completion) error

	// Progress delivers pending inbound traffic and completions. Returns
	// the number of events delivered.
	Progress() int
}
