package wire

import "encoding/binary"

// ATP ("all transfer produced") is the producer-side acknowledgment record,
// sent once after every fragment of a transfer has been put to remote memory.
type ATP struct {
	ReqID uint64 // receiver's request handle, echoed back
	Size  uint64 // total number of bytes produced
}

// ATS ("all transfer sent") is the consumer-side acknowledgment record,
// sent once after every fragment of a transfer has been fetched.
type ATS struct {
	ReqID  uint64 // sender's request handle, echoed back
	Status int32  // 0 on success
}

const (
	ATPSize = 16
	ATSSize = 12
)

// PackATP encodes the record into dest. dest must be at least ATPSize bytes.
// Returns the number of bytes written.
func PackATP(dest []byte, atp *ATP) int {
	binary.BigEndian.PutUint64(dest[0:8], atp.ReqID)
	binary.BigEndian.PutUint64(dest[8:16], atp.Size)
	return ATPSize
}

// ReadATP decodes an ATP record.
func ReadATP(b []byte) (*ATP, error) {
	if len(b) < ATPSize {
		return nil, ErrShortRecord
	}
	return &ATP{
		ReqID: binary.BigEndian.Uint64(b[0:8]),
		Size:  binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// PackATS encodes the record into dest. dest must be at least ATSSize bytes.
// Returns the number of bytes written.
func PackATS(dest []byte, ats *ATS) int {
	binary.BigEndian.PutUint64(dest[0:8], ats.ReqID)
	binary.BigEndian.PutUint32(dest[8:12], uint32(ats.Status))
	return ATSSize
}

// ReadATS decodes an ATS record.
func ReadATS(b []byte) (*ATS, error) {
	if len(b) < ATSSize {
		return nil, ErrShortRecord
	}
	return &ATS{
		ReqID:  binary.BigEndian.Uint64(b[0:8]),
		Status: int32(binary.BigEndian.Uint32(b[8:12])),
	}, nil
}
