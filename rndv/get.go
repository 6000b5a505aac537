package rndv

import (
	"errors"

	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/wire"
)

// getProgress fetches the request's whole cursor from remote memory in one
// zero-copy operation. Completion reporting mirrors putProgress on the
// receiver side.
func getProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*zcopyPriv)
	w := rpriv.w

	data := req.Iter.Bytes()
	err := rpriv.lane.GetZcopy(data, req.Remote.Address, req.Remote.Rkey, func(err error) {
		getComplete(w, req, err)
	})
	if errors.Is(err, transport.ErrNoResource) {
		w.Post(req)
		return nil
	}
	if err != nil {
		zcopyFail(w, req, err, RecvFragComplete)
	}
	return nil
}

func getComplete(w Worker, req *transfer.Request, err error) {
	if err != nil {
		zcopyFail(w, req, err, RecvFragComplete)
		return
	}
	w.Counters().BytesMoved(req.Iter.Remaining())
	if req.IsFrag() {
		// the sent-data acknowledgment is aggregated by the parent
		RecvFragComplete(w, req, true)
		return
	}
	releaseRkey(req)
	req.State.Stage = transfer.StageAck
	w.Post(req)
}

func getAtsProgress(req *transfer.Request) error {
	rpriv := proto.ConfigOf(req).Priv.(*zcopyPriv)
	return amBcopySingleProgress(rpriv.w, req, rpriv.ack.Lane, AMRndvATS,
		wire.ATSSize, packATS(req), recvComplete)
}

// GetZcopyTemplate is the receiver-side zero-copy rendezvous protocol. It
// serves both standalone transfers and fragments of pipelined ones.
func GetZcopyTemplate() *proto.Template {
	return &proto.Template{
		Name: "rndv/get/zcopy",
		Init: func(p *proto.InitParams) (*proto.Capability, interface{}, error) {
			if p.Param.Op != proto.OpRndvRecv {
				return nil, nil, proto.ErrUnsupported
			}
			return zcopyInit(p)
		},
		Progress: proto.ProgressTable{
			Send: getProgress,
			Ack:  getAtsProgress,
		},
		Desc: zcopyDesc("get/zcopy"),
	}
}

// Templates returns every rendezvous protocol, in registration order.
func Templates() []*proto.Template {
	return []*proto.Template{
		PutZcopyTemplate(),
		GetZcopyTemplate(),
		SendPplnTemplate(),
		RecvPplnTemplate(),
	}
}
