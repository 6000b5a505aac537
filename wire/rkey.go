package wire

import "encoding/binary"

// PackedRkey is the serialized form of a remote key: everything a peer needs
// to address a registered memory segment.
type PackedRkey struct {
	DomainID  uint32
	SegmentID uint64
	Address   uint64
	Length    uint64
}

const (
	rkeyMagic      = 0x524b // "RK"
	PackedRkeySize = 2 + 4 + 8 + 8 + 8
)

// PackRkey encodes the key into dest. dest must be at least PackedRkeySize
// bytes. Returns the number of bytes written.
func PackRkey(dest []byte, rk *PackedRkey) int {
	binary.BigEndian.PutUint16(dest[0:2], rkeyMagic)
	binary.BigEndian.PutUint32(dest[2:6], rk.DomainID)
	binary.BigEndian.PutUint64(dest[6:14], rk.SegmentID)
	binary.BigEndian.PutUint64(dest[14:22], rk.Address)
	binary.BigEndian.PutUint64(dest[22:30], rk.Length)
	return PackedRkeySize
}

// ReadRkey decodes a packed remote key.
func ReadRkey(b []byte) (*PackedRkey, error) {
	if len(b) < PackedRkeySize {
		return nil, ErrShortRecord
	}
	if binary.BigEndian.Uint16(b[0:2]) != rkeyMagic {
		return nil, ErrBadMagic
	}
	return &PackedRkey{
		DomainID:  binary.BigEndian.Uint32(b[2:6]),
		SegmentID: binary.BigEndian.Uint64(b[6:14]),
		Address:   binary.BigEndian.Uint64(b[14:22]),
		Length:    binary.BigEndian.Uint64(b[22:30]),
	}, nil
}
