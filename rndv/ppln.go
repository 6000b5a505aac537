package rndv

import (
	"fmt"

	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/utils/linfunc"
	"github.com/unifabric/fabric-base/wire"
)

// pplnPriv is the private configuration of a selected pipelined protocol.
type pplnPriv struct {
	w         Worker
	ack       AckPriv
	fragSize  uint64
	fragProto *proto.SelectElem
}

// pplnOverhead is the fixed coordination cost of the pipelined protocol in
// seconds: a latency term plus the same term amortized per fragment.
const pplnOverhead = 30e-9

// pplnInit builds the pipelined capability out of the best fragment
// sub-protocol's one: ranges a single fragment serves directly are copied
// verbatim, and a synthetic unbounded range models back-to-back fragments at
// the sub-protocol's steady-state cost.
func pplnInit(p *proto.InitParams) (*proto.Capability, interface{}, error) {
	if p.RkeyCfgIndex == proto.NoRkeyCfg ||
		p.Param.Class != proto.ClassContiguous ||
		p.Param.Flags&proto.FlagFragment != 0 {
		return nil, nil, proto.ErrUnsupported
	}
	w, err := workerOf(p)
	if err != nil {
		return nil, nil, err
	}

	ack, ackPerf, err := ackInit(p)
	if err != nil {
		return nil, nil, err
	}

	// the best protocol for driving one fragment of the same operand class
	subParam := p.Param
	subParam.Flags = proto.FlagFragment | proto.FlagMultiSend
	subElem, err := p.Select.Lookup(subParam)
	if err != nil {
		return nil, nil, proto.ErrUnsupported
	}

	rpriv := &pplnPriv{
		w:         w,
		ack:       ack,
		fragProto: subElem,
	}
	caps := &proto.Capability{
		CfgThresh:   proto.ThreshAuto,
		CfgPriority: 0, // fallback fragmentation strategy
	}
	var fragSize uint64
	caps.MinLength, fragSize = subElem.ValidRange()
	if fragSize == proto.MaxLength {
		return nil, nil, proto.ErrUnsupported
	}
	rpriv.fragSize = fragSize

	// sizes a single fragment serves directly: copy the sub-protocol ranges
	// up to and including the one covering fragSize, tracking the largest
	// per-range configuration threshold
	for i := range subElem.Ranges {
		r := &subElem.Ranges[i]
		if r.MaxLength < caps.MinLength {
			continue
		}
		caps.Ranges = append(caps.Ranges, r.PerfRange)
		if r.CfgThresh != proto.ThreshAuto {
			if caps.CfgThresh == proto.ThreshAuto || r.CfgThresh > caps.CfgThresh {
				caps.CfgThresh = r.CfgThresh
			}
		}
		if r.MaxLength >= fragSize {
			break
		}
	}

	// synthetic range for the pipelined sizes: steady state repeats the
	// last fragment range's multi curve; a single isolated operation pays
	// on top the one-time ramp-up the later fragments amortize away
	last := caps.Ranges[len(caps.Ranges)-1]
	fragOverhead := last.Perf[proto.PerfSingle].At(fragSize) -
		last.Perf[proto.PerfMulti].At(fragSize)
	synth := proto.PerfRange{MaxLength: proto.MaxLength}
	synth.Perf[proto.PerfMulti] = last.Perf[proto.PerfMulti]
	synth.Perf[proto.PerfSingle] = last.Perf[proto.PerfMulti]
	synth.Perf[proto.PerfSingle].C += fragOverhead
	caps.Ranges = append(caps.Ranges, synth)

	// every range additionally pays for the eventual acknowledgment round
	// and the per-fragment pipelining coordination
	for i := range caps.Ranges {
		for perfType := proto.PerfSingle; perfType < proto.PerfTypeLast; perfType++ {
			overhead := ackPerf[perfType].Add(
				linfunc.Make(pplnOverhead, pplnOverhead/float64(fragSize)))
			caps.Ranges[i].Perf[perfType] = caps.Ranges[i].Perf[perfType].Add(overhead)
		}
	}

	return caps, rpriv, nil
}

// pplnProgress issues all fragments of the parent back-to-back, never
// waiting for any of them: multiple fragments are concurrently in flight and
// their completions drive the rest of the state machine.
func pplnProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*pplnPriv)
	w := rpriv.w

	req.State.CompletedSize = 0
	req.State.SendAck = false
	req.State.IssuedFrags = 0
	for {
		freq, err := w.Pool().AllocFrag(req)
		if err != nil {
			abort(w, req, err)
			return nil
		}

		sub, next, final := req.Iter.NextSlice(rpriv.fragSize)
		freq.Iter = sub

		freq.Remote = transfer.Remote{
			ReqID:   req.Remote.ReqID,
			Address: req.Remote.Address + req.Iter.Offset(),
			Rkey:    req.Remote.Rkey,
			Offset:  req.Remote.Offset + req.Iter.Offset(),
		}
		freq.Config = rpriv.fragProto.ConfigAt(sub.Remaining())
		freq.State.Stage = transfer.StageSend

		req.State.IssuedFrags++
		w.Counters().FragIssued()
		w.Post(freq)

		if final {
			return nil
		}
		req.Iter = next
	}
}

// pplnFragComplete aggregates one fragment completion into the parent. Once
// the last outstanding fragment reports, the parent releases its remote key
// and either enters the acknowledgment stage or finishes through
// completeFunc. An aborted parent still aggregates for resource release but
// never takes either success path.
func pplnFragComplete(w Worker, freq *transfer.Request, sendAck bool,
	completeFunc func(w Worker, req *transfer.Request)) {

	req := w.Pool().Get(freq.ParentID)
	req.State.SendAck = req.State.SendAck || sendAck
	if !fragComplete(w, req, freq) {
		return
	}

	releaseRkey(req)

	if req.Completed() {
		w.Pool().Free(req)
		return
	}
	if req.State.SendAck {
		req.State.Stage = transfer.StageAck
		w.Post(req)
	} else {
		completeFunc(w, req)
	}
}

// SendFragComplete reports a finished fragment of a sender-side pipelined
// parent.
func SendFragComplete(w Worker, freq *transfer.Request, sendAck bool) {
	pplnFragComplete(w, freq, sendAck, completeSuccess)
}

// RecvFragComplete reports a finished fragment of a receiver-side pipelined
// parent.
func RecvFragComplete(w Worker, freq *transfer.Request, sendAck bool) {
	pplnFragComplete(w, freq, sendAck, recvComplete)
}

func pplnAtpProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*pplnPriv)
	return amBcopySingleProgress(rpriv.w, req, rpriv.ack.Lane, AMRndvATP,
		wire.ATPSize, packATP(req), completeSuccess)
}

func pplnAtsProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*pplnPriv)
	return amBcopySingleProgress(rpriv.w, req, rpriv.ack.Lane, AMRndvATS,
		wire.ATSSize, packATS(req), recvComplete)
}

func pplnDesc(priv interface{}, minLength, maxLength uint64) string {
	rpriv := priv.(*pplnPriv)
	lo := minLength
	if lo > rpriv.fragSize {
		lo = rpriv.fragSize
	}
	hi := maxLength
	if hi > rpriv.fragSize {
		hi = rpriv.fragSize
	}
	return fmt.Sprintf("fr:%s %s", proto.SizeStr(rpriv.fragSize), rpriv.fragProto.Desc(lo, hi))
}

// SendPplnTemplate is the sender-side pipelined rendezvous protocol.
func SendPplnTemplate() *proto.Template {
	return &proto.Template{
		Name: "rndv/send/ppln",
		Init: func(p *proto.InitParams) (*proto.Capability, interface{}, error) {
			if p.Param.Op != proto.OpRndvSend {
				return nil, nil, proto.ErrUnsupported
			}
			return pplnInit(p)
		},
		Progress: proto.ProgressTable{
			Send: pplnProgress,
			Ack:  pplnAtpProgress,
		},
		Desc: pplnDesc,
	}
}

// RecvPplnTemplate is the receiver-side pipelined rendezvous protocol.
func RecvPplnTemplate() *proto.Template {
	return &proto.Template{
		Name: "rndv/recv/ppln",
		Init: func(p *proto.InitParams) (*proto.Capability, interface{}, error) {
			if p.Param.Op != proto.OpRndvRecv {
				return nil, nil, proto.ErrUnsupported
			}
			return pplnInit(p)
		},
		Progress: proto.ProgressTable{
			Send: pplnProgress,
			Ack:  pplnAtsProgress,
		},
		Desc: pplnDesc,
	}
}
