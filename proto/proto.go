// Package proto implements the protocol-selection framework: protocol
// templates declare their capabilities as piecewise affine cost curves, and
// the selector ranks them into per-length-range threshold tables.
package proto

import (
	"errors"
	"fmt"
	"math"

	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/utils/linfunc"
)

// ErrUnsupported is reported by a template which is not applicable to the
// requested operation. It is not a runtime fault: the selector simply
// excludes the template from consideration.
var ErrUnsupported = errors.New("protocol does not support the operation")

// OpID is the operation kind a protocol is selected for.
type OpID uint8

const (
	OpRndvSend OpID = iota
	OpRndvRecv
)

func (op OpID) String() string {
	switch op {
	case OpRndvSend:
		return "rndv_send"
	case OpRndvRecv:
		return "rndv_recv"
	}
	return "unknown"
}

// OpFlags qualify the context an operation runs in.
type OpFlags uint8

const (
	// FlagFragment marks selection for a fragment of a pipelined transfer.
	FlagFragment OpFlags = 1 << iota
	// FlagMultiSend hints that the operation repeats back-to-back, so the
	// steady-state cost curve ranks candidates.
	FlagMultiSend
)

// DataClass is the payload memory layout.
type DataClass uint8

const (
	ClassContiguous DataClass = iota
	ClassGeneric
)

// PerfType distinguishes the cost of one isolated operation from the cost of
// steady-state repeated ones.
type PerfType int

const (
	PerfSingle PerfType = iota
	PerfMulti
	PerfTypeLast
)

const (
	// MaxLength terminates every range list.
	MaxLength = uint64(math.MaxUint64)
	// ThreshAuto leaves the configuration threshold to the selector.
	ThreshAuto = uint64(math.MaxUint64)
)

// PerfRange is the cost model of a protocol over lengths (prev.MaxLength,
// MaxLength].
type PerfRange struct {
	MaxLength uint64
	Perf      [PerfTypeLast]linfunc.Func
}

// Capability is the result of a successful template init: the lengths the
// protocol serves and the cost of serving them.
type Capability struct {
	// CfgThresh forces the protocol at lengths at or above it regardless of
	// the cost ranking; ThreshAuto if not forced.
	CfgThresh uint64
	// CfgPriority breaks ties between forced protocols, higher wins.
	CfgPriority uint8
	// MinLength below which the protocol cannot serve.
	MinLength uint64
	// Ranges ascending by MaxLength; the last one has MaxLength = MaxLength.
	Ranges []PerfRange
}

// MaxServed is the largest length the capability serves: the bound of its
// last range. Protocols serving any length end with MaxLength.
func (c *Capability) MaxServed() uint64 {
	return c.Ranges[len(c.Ranges)-1].MaxLength
}

// Validate checks the range list invariants: ranges are non-overlapping and
// ascending.
func (c *Capability) Validate() error {
	if len(c.Ranges) == 0 {
		return errors.New("capability has no ranges")
	}
	prev := uint64(0)
	for i, r := range c.Ranges {
		if i > 0 && r.MaxLength <= prev {
			return fmt.Errorf("range %d is not ascending", i)
		}
		prev = r.MaxLength
	}
	return nil
}

// rangeAt returns the perf range covering the given length.
func (c *Capability) rangeAt(length uint64) *PerfRange {
	for i := range c.Ranges {
		if length <= c.Ranges[i].MaxLength {
			return &c.Ranges[i]
		}
	}
	return &c.Ranges[len(c.Ranges)-1]
}

// Worker is the narrow view of the progress engine a template may query at
// init time.
type Worker interface {
	// Lanes available for the destination.
	Lanes() []transport.Lane
	// MaxFragSize bounds one pipelined fragment.
	MaxFragSize() uint64
}

// InitParams are the inputs of a capability build.
type InitParams struct {
	Worker Worker
	// Select resolves nested protocol lookups for the same destination.
	Select *Selector
	Param  SelectParam
	// RkeyCfgIndex is the remote-key configuration of the destination, or
	// NoRkeyCfg when the destination has none.
	RkeyCfgIndex int
}

// NoRkeyCfg marks a destination without a remote-key configuration.
const NoRkeyCfg = -1

// ProgressFn drives one stage of a request. It never blocks.
type ProgressFn func(req *transfer.Request) error

// ProgressTable is the per-stage dispatch of a protocol. The worker matches
// on the request stage and calls the corresponding function.
type ProgressTable struct {
	Send ProgressFn
	Ack  ProgressFn
}

// Template is a registered protocol.
type Template struct {
	Name string
	// Init builds the capability for the given selection parameters, plus
	// protocol-private configuration reused by Progress. Returns
	// ErrUnsupported when not applicable.
	Init     func(p *InitParams) (*Capability, interface{}, error)
	Progress ProgressTable
	// Desc renders a human-readable configuration for the given length
	// interval. Optional.
	Desc func(priv interface{}, minLength, maxLength uint64) string
}

// Config is a selected protocol instance.
type Config struct {
	Template *Template
	Priv     interface{}
	Param    SelectParam
}

// Desc renders the configuration over the length interval.
func (c *Config) Desc(minLength, maxLength uint64) string {
	if c.Template.Desc == nil {
		return c.Template.Name
	}
	return c.Template.Desc(c.Priv, minLength, maxLength)
}

// ConfigOf resolves the protocol configuration a request was selected with.
// Returns nil when no selection happened yet.
func ConfigOf(req *transfer.Request) *Config {
	cfg, _ := req.Config.(*Config)
	return cfg
}

// Registry holds the protocol templates considered by a selector.
type Registry struct {
	templates []*Template
}

func NewRegistry(templates ...*Template) *Registry {
	r := &Registry{}
	for _, t := range templates {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t *Template) {
	r.templates = append(r.templates, t)
}

func (r *Registry) Templates() []*Template {
	return r.templates
}

// SizeStr renders a length the way configuration descriptions expect.
func SizeStr(n uint64) string {
	switch {
	case n == MaxLength:
		return "inf"
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%dG", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dM", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dK", n>>10)
	}
	return fmt.Sprintf("%d", n)
}
