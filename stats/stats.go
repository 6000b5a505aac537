// Package stats counts transfer-layer operations.
package stats

import (
	"sync/atomic"
)

// Counters accumulate over the lifetime of a worker. All methods are safe
// for concurrent use.
type Counters struct {
	fragsIssued     uint64
	fragsCompleted  uint64
	acksSent        uint64
	parentsComplete uint64
	parentsAborted  uint64
	bytesMoved      uint64
}

func (c *Counters) FragIssued()         { atomic.AddUint64(&c.fragsIssued, 1) }
func (c *Counters) FragCompleted()      { atomic.AddUint64(&c.fragsCompleted, 1) }
func (c *Counters) AckSent()            { atomic.AddUint64(&c.acksSent, 1) }
func (c *Counters) ParentCompleted()    { atomic.AddUint64(&c.parentsComplete, 1) }
func (c *Counters) ParentAborted()      { atomic.AddUint64(&c.parentsAborted, 1) }
func (c *Counters) BytesMoved(n uint64) { atomic.AddUint64(&c.bytesMoved, n) }

// Snapshot is a consistent-enough copy of the counters for reporting.
type Snapshot struct {
	FragsIssued     uint64
	FragsCompleted  uint64
	AcksSent        uint64
	ParentsComplete uint64
	ParentsAborted  uint64
	BytesMoved      uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FragsIssued:     atomic.LoadUint64(&c.fragsIssued),
		FragsCompleted:  atomic.LoadUint64(&c.fragsCompleted),
		AcksSent:        atomic.LoadUint64(&c.acksSent),
		ParentsComplete: atomic.LoadUint64(&c.parentsComplete),
		ParentsAborted:  atomic.LoadUint64(&c.parentsAborted),
		BytesMoved:      atomic.LoadUint64(&c.bytesMoved),
	}
}
