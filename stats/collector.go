package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the counters to a prometheus registry. Registration is
// optional; a worker runs fine without one.
type Collector struct {
	counters *Counters

	fragsIssued     *prometheus.Desc
	fragsCompleted  *prometheus.Desc
	acksSent        *prometheus.Desc
	parentsComplete *prometheus.Desc
	parentsAborted  *prometheus.Desc
	bytesMoved      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector wraps the counters. namespace distinguishes workers.
func NewCollector(namespace string, counters *Counters) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "transfer", name), help, nil, nil)
	}
	return &Collector{
		counters:        counters,
		fragsIssued:     desc("frags_issued_total", "Fragments issued by the pipelined protocol."),
		fragsCompleted:  desc("frags_completed_total", "Fragment completions observed."),
		acksSent:        desc("acks_sent_total", "Aggregate acknowledgment records sent."),
		parentsComplete: desc("parents_completed_total", "Parent transfers finished successfully."),
		parentsAborted:  desc("parents_aborted_total", "Parent transfers aborted."),
		bytesMoved:      desc("bytes_moved_total", "Payload bytes moved by fragments."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.fragsIssued
	ch <- c.fragsCompleted
	ch <- c.acksSent
	ch <- c.parentsComplete
	ch <- c.parentsAborted
	ch <- c.bytesMoved
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.counters.Snapshot()
	counter := func(d *prometheus.Desc, v uint64) prometheus.Metric {
		return prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	ch <- counter(c.fragsIssued, s.FragsIssued)
	ch <- counter(c.fragsCompleted, s.FragsCompleted)
	ch <- counter(c.acksSent, s.AcksSent)
	ch <- counter(c.parentsComplete, s.ParentsComplete)
	ch <- counter(c.parentsAborted, s.ParentsAborted)
	ch <- counter(c.bytesMoved, s.BytesMoved)
}
