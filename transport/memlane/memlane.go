// Package memlane implements an in-process loopback lane pair. Operations
// issued on one side are delivered on the peer's progress context, which
// keeps the asynchronous completion ordering of a real interconnect while
// moving bytes with plain copies.
package memlane

import (
	"sync"

	"go.uber.org/zap"

	"github.com/unifabric/fabric-base/memreg"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/utils/datasemaphore"
)

// Config sets the modeled lane attributes and the send-side quota.
type Config struct {
	Attrs       transport.Attrs
	MaxInflight transfer.Metric
	Logger      *zap.Logger
}

// DefaultConfig models a shared-memory-like lane.
func DefaultConfig() Config {
	return Config{
		Attrs: transport.Attrs{
			Latency:   500e-9,
			Bandwidth: 12e9,
			Overhead:  40e-9,
			MaxBcopy:  8192,
			MaxZcopy:  1 << 30,
		},
		MaxInflight: transfer.Metric{Num: 1024, Size: 64 << 20},
		Logger:      zap.NewNop(),
	}
}

// Lane is one side of an in-process pair.
type Lane struct {
	cfg  Config
	peer *Lane
	sem  *datasemaphore.DataSemaphore
	log  *zap.Logger

	mu      sync.Mutex
	inbox   []func()
	handler transport.AMHandler
}

var _ transport.Lane = (*Lane)(nil)

// NewPair creates two connected lanes.
func NewPair(cfg Config) (*Lane, *Lane) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	a := newLane(cfg)
	b := newLane(cfg)
	a.peer = b
	b.peer = a
	return a, b
}

func newLane(cfg Config) *Lane {
	return &Lane{
		cfg: cfg,
		sem: datasemaphore.New(cfg.MaxInflight, nil),
		log: cfg.Logger,
	}
}

func (l *Lane) Attrs() transport.Attrs {
	return l.cfg.Attrs
}

func (l *Lane) SetAMHandler(h transport.AMHandler) {
	l.handler = h
}

func (l *Lane) post(fn func()) {
	l.mu.Lock()
	l.inbox = append(l.inbox, fn)
	l.mu.Unlock()
}

// SendAM copies the payload and schedules its delivery on the peer.
func (l *Lane) SendAM(id transport.AMID, payload []byte) error {
	if uint64(len(payload)) > l.cfg.Attrs.MaxBcopy {
		return transport.ErrTooLong
	}
	weight := transfer.Metric{Num: 1, Size: uint64(len(payload))}
	if !l.sem.TryAcquire(weight) {
		return transport.ErrNoResource
	}
	record := append([]byte(nil), payload...)
	l.peer.post(func() {
		l.sem.Release(weight)
		if l.peer.handler != nil {
			l.peer.handler(id, record)
		}
	})
	l.log.Debug("am sent", zap.Uint8("id", uint8(id)), zap.Int("len", len(record)))
	return nil
}

// PutZcopy copies data into the remote window on the peer's progress, then
// schedules the sender-side completion.
func (l *Lane) PutZcopy(data []byte, remoteAddr uint64, rkey *memreg.Rkey, comp transport.Completion) error {
	return l.zcopy(data, remoteAddr, rkey, comp, false)
}

// GetZcopy fills data from the remote window on the peer's progress, then
// schedules the initiator-side completion.
func (l *Lane) GetZcopy(data []byte, remoteAddr uint64, rkey *memreg.Rkey, comp transport.Completion) error {
	return l.zcopy(data, remoteAddr, rkey, comp, true)
}

func (l *Lane) zcopy(data []byte, remoteAddr uint64, rkey *memreg.Rkey, comp transport.Completion, fetch bool) error {
	if uint64(len(data)) > l.cfg.Attrs.MaxZcopy {
		return transport.ErrTooLong
	}
	weight := transfer.Metric{Num: 1, Size: uint64(len(data))}
	if !l.sem.TryAcquire(weight) {
		return transport.ErrNoResource
	}
	window, err := rkey.Bytes(remoteAddr, uint64(len(data)))
	if err != nil {
		l.sem.Release(weight)
		return err
	}
	l.peer.post(func() {
		if fetch {
			copy(data, window)
		} else {
			copy(window, data)
		}
		// completion is delivered on the initiator's own context
		l.post(func() {
			l.sem.Release(weight)
			comp(nil)
		})
	})
	return nil
}

// Progress drains deliveries scheduled by the peer. Called from the owner
// context only.
func (l *Lane) Progress() int {
	l.mu.Lock()
	batch := l.inbox
	l.inbox = nil
	l.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}
