package fabric

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unifabric/fabric-base/callbackq"
	"github.com/unifabric/fabric-base/memreg"
	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/rndv"
	"github.com/unifabric/fabric-base/stats"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/tuning"
	"github.com/unifabric/fabric-base/vfs"
	"github.com/unifabric/fabric-base/wire"
)

// RemoteParams identify the peer side of a rendezvous transfer, as received
// through the application's out-of-band exchange.
type RemoteParams struct {
	// ReqID is the peer's handle, echoed back in the acknowledgment.
	ReqID uint64
	// Address is the base address within the peer's registered segment.
	Address uint64
	// PackedRkey is the peer's packed remote-key, nil for none.
	PackedRkey []byte
	// RkeyCfgIndex is the remote-key configuration of the destination,
	// proto.NoRkeyCfg for none.
	RkeyCfgIndex int
}

// AckFn consumes a peer acknowledgment of an exposed operation. size is the
// transferred length reported by ATP records, status the result code of ATS
// ones.
type AckFn func(size uint64, status int32)

// Worker is the progress engine: it owns the callback queue, the request
// pool, the lanes and the protocol selection caches. All methods except the
// explicitly async ones must run on the worker's own context.
type Worker struct {
	cfg Config
	log *zap.Logger

	queue    *callbackq.Queue
	pool     *transfer.Pool
	lanes    []transport.Lane
	counters stats.Counters

	domain   memreg.Domain
	rkeys    *memreg.RkeyCache
	segments []*memreg.Segment

	registry  *proto.Registry
	selectors map[int]*proto.Selector
	looked    map[int]map[proto.SelectParam]*proto.SelectElem

	nextExpose uint64
	acks       map[uint64]AckFn

	vfsReg *vfs.Registry
}

// NewWorker creates a worker over the registration domain. Lanes are added
// with AddLane. A nil logger silences the worker.
func NewWorker(cfg Config, domain memreg.Domain, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rkeys, err := memreg.NewRkeyCache(domain, cfg.RkeyCacheMaxWeight, cfg.RkeyCacheMaxSize)
	if err != nil {
		return nil, err
	}
	return &Worker{
		cfg:       cfg,
		log:       logger,
		queue:     callbackq.New(),
		pool:      transfer.NewPool(cfg.MaxFrags),
		domain:    domain,
		rkeys:     rkeys,
		registry:  proto.NewRegistry(rndv.Templates()...),
		selectors: make(map[int]*proto.Selector),
		looked:    make(map[int]map[proto.SelectParam]*proto.SelectElem),
		acks:      make(map[uint64]AckFn),
	}, nil
}

// AddLane attaches a lane and installs the worker as its inbound consumer.
func (w *Worker) AddLane(lane transport.Lane) {
	lane.SetAMHandler(w.handleAM)
	w.lanes = append(w.lanes, lane)
}

// Lanes available to protocol capability builds.
func (w *Worker) Lanes() []transport.Lane {
	return w.lanes
}

// MaxFragSize bounds one pipelined fragment.
func (w *Worker) MaxFragSize() uint64 {
	return w.cfg.MaxFragSize
}

// Pool owns the request table and fragment allocation.
func (w *Worker) Pool() *transfer.Pool {
	return w.pool
}

// Counters of the worker.
func (w *Worker) Counters() *stats.Counters {
	return &w.counters
}

// Collector exports the worker counters for a prometheus registry.
func (w *Worker) Collector() *stats.Collector {
	return stats.NewCollector(w.cfg.StatsNamespace, &w.counters)
}

// Log of the worker.
func (w *Worker) Log() *zap.Logger {
	return w.log
}

// Post schedules the request's current stage onto the worker's context.
func (w *Worker) Post(req *transfer.Request) {
	w.queue.AddOneshot(func() {
		w.progressReq(req)
	})
}

// Progress drives the worker: inbound lane traffic and completions first,
// then the posted request stages. Returns the number of processed events.
func (w *Worker) Progress() int {
	n := 0
	for _, lane := range w.lanes {
		n += lane.Progress()
	}
	n += w.queue.Dispatch()
	return n
}

// progressReq dispatches one stage of a posted request.
func (w *Worker) progressReq(req *transfer.Request) {
	if req.Completed() {
		return
	}
	cfg := proto.ConfigOf(req)
	if cfg == nil {
		req.Complete(errors.New("request has no protocol configuration"))
		return
	}

	var fn proto.ProgressFn
	switch req.State.Stage {
	case transfer.StageInit:
		req.State.Stage = transfer.StageSend
		fn = cfg.Template.Progress.Send
	case transfer.StageSend:
		fn = cfg.Template.Progress.Send
	case transfer.StageAck:
		fn = cfg.Template.Progress.Ack
	default:
		return
	}
	if err := fn(req); err != nil {
		w.log.Debug("progress failed",
			zap.Uint32("req", uint32(req.ID)),
			zap.String("stage", req.State.Stage.String()),
			zap.Error(err))
		req.Complete(err)
	}
}

// RegisterMemory registers data with the worker's domain and returns the
// segment plus its packed remote-key for the out-of-band exchange. The
// worker owns the segment until Close.
func (w *Worker) RegisterMemory(data []byte) (*memreg.Segment, []byte, error) {
	seg, err := w.domain.Register(data)
	if err != nil {
		return nil, nil, err
	}
	w.segments = append(w.segments, seg)
	return seg, w.domain.Pack(seg), nil
}

// Expose registers an acknowledgment consumer and returns the handle the
// peer echoes back in its ATP/ATS record.
func (w *Worker) Expose(fn AckFn) uint64 {
	w.nextExpose++
	w.acks[w.nextExpose] = fn
	return w.nextExpose
}

// Unexpose drops a not-yet-acknowledged handle.
func (w *Worker) Unexpose(id uint64) {
	delete(w.acks, id)
}

// handleAM consumes inbound control records on the owner context.
func (w *Worker) handleAM(id transport.AMID, payload []byte) {
	switch id {
	case rndv.AMRndvATP:
		atp, err := wire.ReadATP(payload)
		if err != nil {
			w.log.Warn("malformed ATP record", zap.Error(err))
			return
		}
		w.deliverAck(atp.ReqID, atp.Size, 0)
	case rndv.AMRndvATS:
		ats, err := wire.ReadATS(payload)
		if err != nil {
			w.log.Warn("malformed ATS record", zap.Error(err))
			return
		}
		w.deliverAck(ats.ReqID, 0, ats.Status)
	default:
		w.log.Warn("unknown active message", zap.Uint8("id", uint8(id)))
	}
}

func (w *Worker) deliverAck(reqID, size uint64, status int32) {
	fn, ok := w.acks[reqID]
	if !ok {
		w.log.Warn("acknowledgment for unknown handle", zap.Uint64("req", reqID))
		return
	}
	delete(w.acks, reqID)
	fn(size, status)
}

// selector returns the selection cache of the destination, creating it on
// first use.
func (w *Worker) selector(rkeyCfgIndex int) (*proto.Selector, error) {
	if sel, ok := w.selectors[rkeyCfgIndex]; ok {
		return sel, nil
	}
	sel, err := proto.NewSelector(w.registry, w, rkeyCfgIndex, w.cfg.SelectCacheSize)
	if err != nil {
		return nil, err
	}
	w.selectors[rkeyCfgIndex] = sel
	return sel, nil
}

// lookupElem resolves a selection and records it for tuning dumps.
func (w *Worker) lookupElem(rkeyCfgIndex int, param proto.SelectParam) (*proto.SelectElem, error) {
	sel, err := w.selector(rkeyCfgIndex)
	if err != nil {
		return nil, err
	}
	elem, err := sel.Lookup(param)
	if err != nil {
		return nil, err
	}
	seen := w.looked[rkeyCfgIndex]
	if seen == nil {
		seen = make(map[proto.SelectParam]*proto.SelectElem)
		w.looked[rkeyCfgIndex] = seen
	}
	seen[param] = elem
	return elem, nil
}

// StartSend begins a rendezvous send of data into the peer's memory.
func (w *Worker) StartSend(data []byte, remote RemoteParams, onComplete func(error)) (*transfer.Request, error) {
	return w.start(proto.OpRndvSend, data, remote, onComplete)
}

// StartRecv begins a rendezvous receive of data from the peer's memory.
func (w *Worker) StartRecv(data []byte, remote RemoteParams, onComplete func(error)) (*transfer.Request, error) {
	return w.start(proto.OpRndvRecv, data, remote, onComplete)
}

func (w *Worker) start(op proto.OpID, data []byte, remote RemoteParams, onComplete func(error)) (*transfer.Request, error) {
	var rkey *memreg.Rkey
	if len(remote.PackedRkey) > 0 {
		var err error
		rkey, err = w.rkeys.Unpack(remote.PackedRkey)
		if err != nil {
			return nil, errors.Wrap(err, "unpack remote key")
		}
	}

	param := proto.SelectParam{Op: op, Class: proto.ClassContiguous}
	elem, err := w.lookupElem(remote.RkeyCfgIndex, param)
	if err == nil {
		if cfg := elem.ConfigAt(uint64(len(data))); cfg != nil {
			req := &transfer.Request{
				Iter: transfer.NewIter(data),
				Remote: transfer.Remote{
					ReqID:   remote.ReqID,
					Address: remote.Address,
					Rkey:    rkey,
				},
				Config:     cfg,
				OnComplete: onComplete,
			}
			w.pool.Add(req)
			w.Post(req)
			return req, nil
		}
		err = errors.Errorf("no protocol serves %s of length %d", param, len(data))
	}
	if rkey != nil {
		_ = rkey.Release()
	}
	return nil, err
}

// WarmStart preloads the destination's selection cache from a tuning store.
func (w *Worker) WarmStart(store *tuning.Store, rkeyCfgIndex int) (int, error) {
	sel, err := w.selector(rkeyCfgIndex)
	if err != nil {
		return 0, err
	}
	return tuning.WarmStart(store, sel)
}

// DumpTuning snapshots the destination's resolved selections into a tuning
// store.
func (w *Worker) DumpTuning(store *tuning.Store, rkeyCfgIndex int) error {
	for param, elem := range w.looked[rkeyCfgIndex] {
		if err := store.Save(param, elem); err != nil {
			return err
		}
	}
	return nil
}

// RegisterVfs publishes the worker under the introspection tree.
func (w *Worker) RegisterVfs(reg *vfs.Registry, name string) {
	w.vfsReg = reg
	reg.AddDir(nil, w, "worker/%s", name)
	reg.AddReadOnlyFile(w, func(obj interface{}, sb *strings.Builder) {
		snap := obj.(*Worker).counters.Snapshot()
		fmt.Fprintf(sb, "frags_issued: %d\n", snap.FragsIssued)
		fmt.Fprintf(sb, "frags_completed: %d\n", snap.FragsCompleted)
		fmt.Fprintf(sb, "acks_sent: %d\n", snap.AcksSent)
		fmt.Fprintf(sb, "parents_completed: %d\n", snap.ParentsComplete)
		fmt.Fprintf(sb, "parents_aborted: %d\n", snap.ParentsAborted)
		fmt.Fprintf(sb, "bytes_moved: %d\n", snap.BytesMoved)
	}, "stats")
	reg.AddReadOnlyFile(w, func(obj interface{}, sb *strings.Builder) {
		wrk := obj.(*Worker)
		for idx, seen := range wrk.looked {
			for param, elem := range seen {
				lo, hi := elem.ValidRange()
				fmt.Fprintf(sb, "%d %s: %s\n", idx, param, elem.Desc(lo, hi))
			}
		}
	}, "protocols")
}

// Close releases the worker's registered memory and caches.
func (w *Worker) Close() error {
	var err error
	for _, seg := range w.segments {
		err = multierr.Append(err, w.domain.Deregister(seg))
	}
	w.segments = nil
	w.rkeys.Purge()
	if w.vfsReg != nil {
		w.vfsReg.Remove(w)
		w.vfsReg = nil
	}
	return err
}
