package rndv

import (
	"errors"
	"fmt"

	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/utils/linfunc"
	"github.com/unifabric/fabric-base/wire"
)

// zcopyPriv is the private configuration of the put and get zero-copy
// protocols.
type zcopyPriv struct {
	w    Worker
	lane transport.Lane
	ack  AckPriv
}

// zcopyInit builds the capability of a one-shot zero-copy protocol. In
// fragment context the serving bound is the worker's fragment limit;
// standalone operations are bounded by the lane and additionally pay for
// their own acknowledgment record.
func zcopyInit(p *proto.InitParams) (*proto.Capability, interface{}, error) {
	if p.RkeyCfgIndex == proto.NoRkeyCfg || p.Param.Class != proto.ClassContiguous {
		return nil, nil, proto.ErrUnsupported
	}
	w, err := workerOf(p)
	if err != nil {
		return nil, nil, err
	}
	lane := pickZcopyLane(p.Worker.Lanes())
	if lane == nil {
		return nil, nil, proto.ErrUnsupported
	}
	ack, ackPerf, err := ackInit(p)
	if err != nil {
		return nil, nil, err
	}

	attrs := lane.Attrs()
	bound := attrs.MaxZcopy
	if p.Param.Flags&proto.FlagFragment != 0 {
		if limit := p.Worker.MaxFragSize(); limit < bound {
			bound = limit
		}
	}

	r := proto.PerfRange{MaxLength: bound}
	r.Perf[proto.PerfSingle] = linfunc.Make(attrs.Latency+attrs.Overhead, 1/attrs.Bandwidth)
	// back-to-back operations overlap the wire latency
	r.Perf[proto.PerfMulti] = linfunc.Make(attrs.Overhead, 1/attrs.Bandwidth)
	if p.Param.Flags&proto.FlagFragment == 0 {
		for perfType := proto.PerfSingle; perfType < proto.PerfTypeLast; perfType++ {
			r.Perf[perfType] = r.Perf[perfType].Add(ackPerf[perfType])
		}
	}

	return &proto.Capability{
			CfgThresh: proto.ThreshAuto,
			Ranges:    []proto.PerfRange{r},
		}, &zcopyPriv{
			w:    w,
			lane: lane,
			ack:  ack,
		}, nil
}

// pickZcopyLane prefers the highest-bandwidth lane capable of zero copy.
func pickZcopyLane(lanes []transport.Lane) transport.Lane {
	var best transport.Lane
	for _, lane := range lanes {
		attrs := lane.Attrs()
		if attrs.MaxZcopy == 0 {
			continue
		}
		if best == nil || attrs.Bandwidth > best.Attrs().Bandwidth {
			best = lane
		}
	}
	return best
}

func zcopyDesc(name string) func(priv interface{}, minLength, maxLength uint64) string {
	return func(priv interface{}, minLength, maxLength uint64) string {
		return fmt.Sprintf("%s:%s..%s", name, proto.SizeStr(minLength), proto.SizeStr(maxLength))
	}
}

// putProgress writes the request's whole cursor to remote memory in one
// zero-copy operation. In fragment context the completion reports to the
// pipeline aggregator; a standalone request proceeds to its own
// acknowledgment stage.
func putProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*zcopyPriv)
	w := rpriv.w

	data := req.Iter.Bytes()
	err := rpriv.lane.PutZcopy(data, req.Remote.Address, req.Remote.Rkey, func(err error) {
		putComplete(w, req, err)
	})
	if errors.Is(err, transport.ErrNoResource) {
		w.Post(req)
		return nil
	}
	if err != nil {
		zcopyFail(w, req, err, SendFragComplete)
	}
	return nil
}

func putComplete(w Worker, req *transfer.Request, err error) {
	if err != nil {
		zcopyFail(w, req, err, SendFragComplete)
		return
	}
	w.Counters().BytesMoved(req.Iter.Remaining())
	if req.IsFrag() {
		// the produced-data acknowledgment is aggregated by the parent
		SendFragComplete(w, req, true)
		return
	}
	releaseRkey(req)
	req.State.Stage = transfer.StageAck
	w.Post(req)
}

// zcopyFail surfaces a data-stage failure. For a fragment the parent is
// aborted and the fragment is still handed to the aggregator so resources
// are reclaimed.
func zcopyFail(w Worker, req *transfer.Request, err error,
	fragDone func(w Worker, freq *transfer.Request, sendAck bool)) {

	if !req.IsFrag() {
		releaseRkey(req)
		abort(w, req, err)
		return
	}
	parent := w.Pool().Get(req.ParentID)
	abort(w, parent, err)
	fragDone(w, req, false)
}

func putAtpProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*zcopyPriv)
	return amBcopySingleProgress(rpriv.w, req, rpriv.ack.Lane, AMRndvATP,
		wire.ATPSize, packATP(req), completeSuccess)
}

// PutZcopyTemplate is the sender-side zero-copy rendezvous protocol. It
// serves both standalone transfers and fragments of pipelined ones.
func PutZcopyTemplate() *proto.Template {
	return &proto.Template{
		Name: "rndv/put/zcopy",
		Init: func(p *proto.InitParams) (*proto.Capability, interface{}, error) {
			if p.Param.Op != proto.OpRndvSend {
				return nil, nil, proto.ErrUnsupported
			}
			return zcopyInit(p)
		},
		Progress: proto.ProgressTable{
			Send: putProgress,
			Ack:  putAtpProgress,
		},
		Desc: zcopyDesc("put/zcopy"),
	}
}
