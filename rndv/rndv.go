// Package rndv implements the rendezvous data-transfer protocols: the
// zero-copy put/get sub-protocols and the pipelined protocol which splits a
// large transfer into bounded fragments driven through them.
package rndv

import (
	"go.uber.org/zap"

	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/stats"
	"github.com/unifabric/fabric-base/transfer"
)

// Worker is what the rendezvous protocols require from the progress engine.
// It widens the selection-time view with the request machinery used at
// progress time.
type Worker interface {
	proto.Worker

	// Pool owns the request table and fragment allocation.
	Pool() *transfer.Pool
	// Post schedules the request's current stage to be progressed on the
	// worker's context. Owner context only.
	Post(req *transfer.Request)
	Counters() *stats.Counters
	Log() *zap.Logger
}

// workerOf extracts the progress-capable worker from init params.
func workerOf(p *proto.InitParams) (Worker, error) {
	w, ok := p.Worker.(Worker)
	if !ok {
		return nil, proto.ErrUnsupported
	}
	return w, nil
}

// totalLength is the whole logical length of a request, valid at any cursor
// position.
func totalLength(req *transfer.Request) uint64 {
	return req.Iter.Offset() + req.Iter.Remaining()
}

// completeSuccess finishes a sender-side parent.
func completeSuccess(w Worker, req *transfer.Request) {
	w.Counters().ParentCompleted()
	req.Complete(nil)
	w.Pool().Free(req)
}

// recvComplete finishes a receiver-side parent: on top of the success
// notification it retires the receive-side bookkeeping of the request.
func recvComplete(w Worker, req *transfer.Request) {
	w.Counters().ParentCompleted()
	w.Log().Debug("recv completed",
		zap.Uint32("req", uint32(req.ID)),
		zap.Uint64("length", totalLength(req)))
	req.Complete(nil)
	w.Pool().Free(req)
}

// abort fails the request with err as its final result. Fragments already
// issued are not cancelled: their completions still feed the aggregator for
// resource release, but the success path is never taken afterwards.
func abort(w Worker, req *transfer.Request, err error) {
	if req.Completed() {
		return
	}
	w.Log().Debug("transfer aborted",
		zap.Uint32("req", uint32(req.ID)),
		zap.Error(err))
	w.Counters().ParentAborted()
	req.Complete(err)
	if req.State.IssuedFrags == 0 {
		releaseRkey(req)
		w.Pool().Free(req)
	}
}

// releaseRkey returns the parent's remote key, exactly once.
func releaseRkey(req *transfer.Request) {
	if req.Remote.Rkey == nil {
		return
	}
	_ = req.Remote.Rkey.Release()
	req.Remote.Rkey = nil
}

// fragComplete accounts one finished fragment against its parent and frees
// it. Returns true once no issued fragment remains outstanding.
func fragComplete(w Worker, parent *transfer.Request, freq *transfer.Request) bool {
	parent.State.CompletedSize += freq.Iter.Remaining()
	parent.State.IssuedFrags--
	w.Pool().Free(freq)
	w.Counters().FragCompleted()
	return parent.State.IssuedFrags == 0
}
