// Package tuning persists protocol-selection snapshots, so a worker can warm
// its selector cache from a previous run instead of re-ranking every protocol
// from scratch.
package tuning

import (
	"math"

	"github.com/pkg/errors"

	"github.com/unifabric/fabric-base/proto"
	"github.com/unifabric/fabric-base/utils/linfunc"
)

// FuncRec is an affine cost function with the float terms stored as IEEE-754
// bits, so the encoding round-trips exactly.
type FuncRec struct {
	C uint64
	M uint64
}

func packFunc(f linfunc.Func) FuncRec {
	return FuncRec{
		C: math.Float64bits(f.C),
		M: math.Float64bits(f.M),
	}
}

func (r FuncRec) unpack() linfunc.Func {
	return linfunc.Make(math.Float64frombits(r.C), math.Float64frombits(r.M))
}

// ThresholdRec names the protocol serving lengths up to MaxLength.
type ThresholdRec struct {
	MaxLength uint64
	Template  string
}

// RangeRec is one stitched perf range of the winning protocols.
type RangeRec struct {
	MaxLength uint64
	CfgThresh uint64
	Single    FuncRec
	Multi     FuncRec
}

// Record is a serializable snapshot of one finished selection.
type Record struct {
	Op        uint8
	Flags     uint8
	Class     uint8
	MinLength uint64

	Thresholds []ThresholdRec
	Ranges     []RangeRec
}

// Param restores the selection parameters the record was built for.
func (rec *Record) Param() proto.SelectParam {
	return proto.SelectParam{
		Op:    proto.OpID(rec.Op),
		Flags: proto.OpFlags(rec.Flags),
		Class: proto.DataClass(rec.Class),
	}
}

// Snapshot converts a finished selection into its serializable form.
func Snapshot(param proto.SelectParam, elem *proto.SelectElem) *Record {
	rec := &Record{
		Op:        uint8(param.Op),
		Flags:     uint8(param.Flags),
		Class:     uint8(param.Class),
		MinLength: elem.MinLength,
	}
	for _, th := range elem.Thresholds {
		rec.Thresholds = append(rec.Thresholds, ThresholdRec{
			MaxLength: th.MaxLength,
			Template:  th.Config.Template.Name,
		})
	}
	for _, r := range elem.Ranges {
		rec.Ranges = append(rec.Ranges, RangeRec{
			MaxLength: r.MaxLength,
			CfgThresh: r.CfgThresh,
			Single:    packFunc(r.Perf[proto.PerfSingle]),
			Multi:     packFunc(r.Perf[proto.PerfMulti]),
		})
	}
	return rec
}

// Restore rebuilds the selection against the given selector: the named
// templates are re-initialized to recover their private configuration, while
// the threshold table and the cost model come from the record.
func (rec *Record) Restore(sel *proto.Selector) (*proto.SelectElem, error) {
	param := rec.Param()

	byName := make(map[string]*proto.Template)
	for _, tmpl := range sel.Registry().Templates() {
		byName[tmpl.Name] = tmpl
	}
	configs := make(map[string]*proto.Config)

	elem := &proto.SelectElem{MinLength: rec.MinLength}
	for _, th := range rec.Thresholds {
		cfg, ok := configs[th.Template]
		if !ok {
			tmpl, found := byName[th.Template]
			if !found {
				return nil, errors.Errorf("unknown protocol %q in tuning record for %s", th.Template, param)
			}
			_, priv, err := tmpl.Init(&proto.InitParams{
				Worker:       sel.Worker(),
				Select:       sel,
				Param:        param,
				RkeyCfgIndex: sel.RkeyCfgIndex(),
			})
			if err != nil {
				return nil, errors.Wrapf(err, "re-init %s for %s", th.Template, param)
			}
			cfg = &proto.Config{Template: tmpl, Priv: priv, Param: param}
			configs[th.Template] = cfg
		}
		elem.Thresholds = append(elem.Thresholds, proto.Threshold{
			MaxLength: th.MaxLength,
			Config:    cfg,
		})
	}
	if len(elem.Thresholds) == 0 {
		return nil, errors.Errorf("empty tuning record for %s", param)
	}

	for _, r := range rec.Ranges {
		sr := proto.SelectRange{CfgThresh: r.CfgThresh}
		sr.MaxLength = r.MaxLength
		sr.Perf[proto.PerfSingle] = r.Single.unpack()
		sr.Perf[proto.PerfMulti] = r.Multi.unpack()
		elem.Ranges = append(elem.Ranges, sr)
	}
	return elem, nil
}
