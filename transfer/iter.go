// Package transfer implements transfer requests and the data cursors and
// pooling machinery behind them.
package transfer

// Iter is a cursor over a contiguous data buffer: the not-yet-consumed part
// of a transfer plus the number of bytes already consumed from its start.
type Iter struct {
	data   []byte
	offset uint64
}

// NewIter returns a cursor positioned at the start of data.
func NewIter(data []byte) Iter {
	return Iter{data: data}
}

// Offset is the number of bytes consumed from the start of the transfer.
func (it Iter) Offset() uint64 {
	return it.offset
}

// Remaining is the number of bytes not yet consumed.
func (it Iter) Remaining() uint64 {
	return uint64(len(it.data))
}

// Bytes exposes the not-yet-consumed part of the buffer.
func (it Iter) Bytes() []byte {
	return it.data
}

// NextSlice cuts up to maxLen bytes off the front of the cursor. It returns
// the slice cursor, the advanced cursor, and whether the slice reaches the
// end of the data. The receiver is not modified; callers advance by adopting
// next, which lets them keep the pre-slice position until the slice is
// actually issued.
func (it Iter) NextSlice(maxLen uint64) (sub Iter, next Iter, final bool) {
	n := uint64(len(it.data))
	if n > maxLen {
		n = maxLen
	}
	sub = Iter{data: it.data[:n], offset: it.offset}
	next = Iter{data: it.data[n:], offset: it.offset + n}
	final = n == uint64(len(it.data))
	return sub, next, final
}
