package datasemaphore

import (
	"sync"
	"time"

	"github.com/unifabric/fabric-base/transfer"
)

// DataSemaphore bounds the amount of in-flight transfer data by both
// operation count and byte size.
type DataSemaphore struct {
	processing    transfer.Metric
	maxProcessing transfer.Metric

	mu   sync.Mutex
	cond *sync.Cond

	warning func(processing transfer.Metric, releasing transfer.Metric)
}

func New(maxProcessing transfer.Metric, warning func(processing transfer.Metric, releasing transfer.Metric)) *DataSemaphore {
	s := &DataSemaphore{
		maxProcessing: maxProcessing,
		warning:       warning,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *DataSemaphore) Acquire(weight transfer.Metric, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.tryAcquire(weight) {
		if weight.Size > s.maxProcessing.Size || weight.Num > s.maxProcessing.Num || time.Now().After(deadline) {
			return false
		}
		s.cond.Wait()
	}
	return true
}

func (s *DataSemaphore) TryAcquire(weight transfer.Metric) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tryAcquire(weight)
}

func (s *DataSemaphore) tryAcquire(metric transfer.Metric) bool {
	tmp := s.processing
	tmp.Num += metric.Num
	tmp.Size += metric.Size
	if tmp.Num > s.maxProcessing.Num || tmp.Size > s.maxProcessing.Size {
		return false
	}
	s.processing = tmp
	return true
}

func (s *DataSemaphore) Release(weight transfer.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing.Num < weight.Num || s.processing.Size < weight.Size {
		if s.warning != nil {
			s.warning(s.processing, weight)
		}
		s.processing = transfer.Metric{}
	} else {
		s.processing.Num -= weight.Num
		s.processing.Size -= weight.Size
	}
	s.cond.Broadcast()
}

func (s *DataSemaphore) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxProcessing = transfer.Metric{}
	s.cond.Broadcast()
}

func (s *DataSemaphore) Processing() transfer.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func (s *DataSemaphore) Available() transfer.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transfer.Metric{
		Num:  s.maxProcessing.Num - s.processing.Num,
		Size: s.maxProcessing.Size - s.processing.Size,
	}
}
