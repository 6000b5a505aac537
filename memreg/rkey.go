package memreg

// Rkey is an attached remote key: authorization to access a peer's registered
// segment at a given address range. A key is released exactly once; the owner
// of a transfer holds it only for as long as its fragments need it.
type Rkey struct {
	DomainID  uint32
	SegmentID SegmentID
	Address   uint64
	Length    uint64

	mem       []byte
	released  bool
	onRelease func(*Rkey)
}

// Bytes resolves an access window [addr, addr+length) inside the attached
// segment.
func (rk *Rkey) Bytes(addr, length uint64) ([]byte, error) {
	if rk.released {
		return nil, ErrReleased
	}
	if addr < rk.Address || addr+length > rk.Address+rk.Length {
		return nil, ErrOutOfRange
	}
	off := addr - rk.Address
	return rk.mem[off : off+length], nil
}

// Release returns the key to its domain. The second release of the same key
// is an error.
func (rk *Rkey) Release() error {
	if rk.released {
		return ErrReleased
	}
	rk.released = true
	if rk.onRelease != nil {
		rk.onRelease(rk)
	}
	return nil
}

// Released reports whether the key has been released.
func (rk *Rkey) Released() bool {
	return rk.released
}
