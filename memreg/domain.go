// Package memreg implements memory domains: registration of local memory
// segments and remote keys granting access to peers' registered segments.
package memreg

import (
	"errors"

	"github.com/unifabric/fabric-base/wire"
)

var (
	ErrNotRegistered = errors.New("segment is not registered")
	ErrUnknownDomain = errors.New("packed key belongs to an unknown domain")
	ErrOutOfRange    = errors.New("remote access is out of the segment range")
	ErrReleased      = errors.New("remote key is already released")
)

// SegmentID identifies a registered segment within its domain.
type SegmentID uint64

// Segment is a region of local memory registered for remote access.
type Segment struct {
	ID      SegmentID
	Address uint64 // base address in the domain's address space
	Data    []byte
}

// Domain registers local memory and resolves remote keys.
type Domain interface {
	// ID identifies the domain across peers.
	ID() uint32

	// Register makes data available for remote access and assigns it an
	// address in the domain's address space.
	Register(data []byte) (*Segment, error)

	// Deregister withdraws the segment. Outstanding remote keys attached to
	// it stay usable until released.
	Deregister(seg *Segment) error

	// Pack serializes the remote key of a registered segment.
	Pack(seg *Segment) []byte

	// Unpack attaches to the segment a packed key refers to. The returned
	// key must be released exactly once.
	Unpack(packed []byte) (*Rkey, error)
}

// packRkey is shared by domain implementations.
func packRkey(domainID uint32, seg *Segment) []byte {
	buf := make([]byte, wire.PackedRkeySize)
	wire.PackRkey(buf, &wire.PackedRkey{
		DomainID:  domainID,
		SegmentID: uint64(seg.ID),
		Address:   seg.Address,
		Length:    uint64(len(seg.Data)),
	})
	return buf
}
