package memreg

import (
	"github.com/unifabric/fabric-base/wire"
)

// segment addresses are synthetic: the segment ID forms the upper half of the
// address, which caps a single registration at 4 GiB
const segAddrShift = 32

// ProcDomain is a process-local memory domain: remote keys unpacked within
// the same process alias the registered buffers directly, which models shared
// memory between workers of one process.
type ProcDomain struct {
	id      uint32
	segs    map[SegmentID]*Segment
	nextSeg SegmentID
}

var _ Domain = (*ProcDomain)(nil)

// NewProcDomain creates a process-local domain with the given ID.
func NewProcDomain(id uint32) *ProcDomain {
	return &ProcDomain{
		id:   id,
		segs: make(map[SegmentID]*Segment),
	}
}

func (d *ProcDomain) ID() uint32 {
	return d.id
}

func (d *ProcDomain) Register(data []byte) (*Segment, error) {
	d.nextSeg++
	seg := &Segment{
		ID:      d.nextSeg,
		Address: uint64(d.nextSeg) << segAddrShift,
		Data:    data,
	}
	d.segs[seg.ID] = seg
	return seg, nil
}

func (d *ProcDomain) Deregister(seg *Segment) error {
	if _, ok := d.segs[seg.ID]; !ok {
		return ErrNotRegistered
	}
	delete(d.segs, seg.ID)
	return nil
}

func (d *ProcDomain) Pack(seg *Segment) []byte {
	return packRkey(d.id, seg)
}

func (d *ProcDomain) Unpack(packed []byte) (*Rkey, error) {
	rec, err := wire.ReadRkey(packed)
	if err != nil {
		return nil, err
	}
	if rec.DomainID != d.id {
		return nil, ErrUnknownDomain
	}
	seg, ok := d.segs[SegmentID(rec.SegmentID)]
	if !ok {
		return nil, ErrNotRegistered
	}
	return &Rkey{
		DomainID:  rec.DomainID,
		SegmentID: seg.ID,
		Address:   rec.Address,
		Length:    rec.Length,
		mem:       seg.Data,
	}, nil
}
