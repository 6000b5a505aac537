package rndv

import (
	"errors"

	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/utils/linfunc"
	"github.com/unifabric/fabric-base/wire"
)

// Active-message IDs of the rendezvous acknowledgment records.
const (
	AMRndvATP transport.AMID = 0x10
	AMRndvATS transport.AMID = 0x11
)

// AckPriv is the acknowledgment configuration chosen once at capability
// build time.
type AckPriv struct {
	Lane transport.Lane
}

// ackInit selects the acknowledgment lane and returns the cost its record
// adds to the operation, per perf type. Fails with ErrUnsupported when no
// lane can carry the fixed-size record.
func ackInit(p *proto.InitParams) (AckPriv, [proto.PerfTypeLast]linfunc.Func, error) {
	var perf [proto.PerfTypeLast]linfunc.Func
	lane := pickAckLane(p.Worker.Lanes())
	if lane == nil {
		return AckPriv{}, perf, proto.ErrUnsupported
	}
	t := ackTime(lane)
	perf[proto.PerfSingle] = t
	perf[proto.PerfMulti] = t
	return AckPriv{Lane: lane}, perf, nil
}

// pickAckLane prefers the lowest per-record time among lanes able to carry
// an acknowledgment.
func pickAckLane(lanes []transport.Lane) transport.Lane {
	var best transport.Lane
	bestTime := 0.0
	for _, lane := range lanes {
		attrs := lane.Attrs()
		if attrs.MaxBcopy < wire.ATPSize {
			continue
		}
		lat, _ := attrs.AMTime()
		if best == nil || lat < bestTime {
			best = lane
			bestTime = lat
		}
	}
	return best
}

// ackTime is the cost contribution of one fixed-size acknowledgment record
// on the lane. Constant in the transfer length.
func ackTime(lane transport.Lane) linfunc.Func {
	lat, _ := lane.Attrs().AMTime()
	return linfunc.Make(lat, 0)
}

// amBcopySingleProgress sends exactly one buffered-copy record and invokes
// complete. Out of lane resources is not a fault: the request is re-posted
// and retried on a later progress round.
func amBcopySingleProgress(w Worker, req *transfer.Request, lane transport.Lane,
	id transport.AMID, size int, pack func(buf []byte) int,
	complete func(w Worker, req *transfer.Request)) error {

	buf := make([]byte, size)
	n := pack(buf)
	err := lane.SendAM(id, buf[:n])
	if errors.Is(err, transport.ErrNoResource) {
		w.Post(req)
		return nil
	}
	if err != nil {
		abort(w, req, err)
		return nil
	}
	w.Counters().AckSent()
	complete(w, req)
	return nil
}

// packATP encodes the producer-side acknowledgment of a parent.
func packATP(req *transfer.Request) func(buf []byte) int {
	return func(buf []byte) int {
		return wire.PackATP(buf, &wire.ATP{
			ReqID: req.Remote.ReqID,
			Size:  totalLength(req),
		})
	}
}

// packATS encodes the consumer-side acknowledgment of a parent.
func packATS(req *transfer.Request) func(buf []byte) int {
	return func(buf []byte) int {
		return wire.PackATS(buf, &wire.ATS{
			ReqID:  req.Remote.ReqID,
			Status: 0,
		})
	}
}
