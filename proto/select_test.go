package proto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unifabric/fabric-base/transport"
	"github.com/unifabric/fabric-base/utils/linfunc"
)

type fakeWorker struct{}

func (fakeWorker) Lanes() []transport.Lane { return nil }
func (fakeWorker) MaxFragSize() uint64     { return 8192 }

// flatTemplate serves every length with a constant cost.
func flatTemplate(name string, cost float64, ranges []PerfRange) *Template {
	return &Template{
		Name: name,
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			if ranges == nil {
				ranges = []PerfRange{{
					MaxLength: MaxLength,
					Perf: [PerfTypeLast]linfunc.Func{
						linfunc.Make(cost, 0),
						linfunc.Make(cost, 0),
					},
				}}
			}
			return &Capability{
				CfgThresh: ThreshAuto,
				MinLength: 0,
				Ranges:    ranges,
			}, nil, nil
		},
	}
}

func newSelector(t *testing.T, templates ...*Template) *Selector {
	s, err := NewSelector(NewRegistry(templates...), fakeWorker{}, 0, 16)
	require.NoError(t, err)
	return s
}

func TestLookupNoCandidates(t *testing.T) {
	unsupported := &Template{
		Name: "never",
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			return nil, nil, ErrUnsupported
		},
	}
	s := newSelector(t, unsupported)
	_, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestLookupPicksCheapest(t *testing.T) {
	s := newSelector(t,
		flatTemplate("pricey", 10e-6, nil),
		flatTemplate("cheap", 1e-6, nil),
	)
	elem, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.NoError(t, err)
	require.Len(t, elem.Thresholds, 1)
	require.Equal(t, "cheap", elem.Thresholds[0].Config.Template.Name)
	require.Equal(t, MaxLength, elem.Thresholds[0].MaxLength)
}

func TestLookupPiecewiseBest(t *testing.T) {
	// eager is cheap for short messages, lazy wins on slope for long ones
	eager := &Template{
		Name: "eager",
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			return &Capability{
				CfgThresh: ThreshAuto,
				Ranges: []PerfRange{{
					MaxLength: MaxLength,
					Perf: [PerfTypeLast]linfunc.Func{
						linfunc.Make(1e-6, 1e-9),
						linfunc.Make(1e-6, 1e-9),
					},
				}},
			}, nil, nil
		},
	}
	lazy := &Template{
		Name: "lazy",
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			return &Capability{
				CfgThresh: ThreshAuto,
				MinLength: 1000,
				Ranges: []PerfRange{{
					MaxLength: MaxLength,
					Perf: [PerfTypeLast]linfunc.Func{
						linfunc.Make(5e-6, 0.1e-9),
						linfunc.Make(5e-6, 0.1e-9),
					},
				}},
			}, nil, nil
		},
	}

	s := newSelector(t, eager, lazy)
	elem, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.NoError(t, err)

	require.Equal(t, "eager", elem.ConfigAt(100).Template.Name)
	require.Equal(t, "lazy", elem.ConfigAt(1 << 20).Template.Name)
	minLen, maxLen := elem.ValidRange()
	require.Equal(t, uint64(0), minLen)
	require.Equal(t, MaxLength, maxLen)
}

func TestForcedThreshold(t *testing.T) {
	forced := &Template{
		Name: "forced",
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			return &Capability{
				CfgThresh: 4096,
				Ranges: []PerfRange{{
					MaxLength: MaxLength,
					Perf: [PerfTypeLast]linfunc.Func{
						linfunc.Make(100e-6, 0),
						linfunc.Make(100e-6, 0),
					},
				}},
			}, nil, nil
		},
	}
	s := newSelector(t, flatTemplate("cheap", 1e-6, nil), forced)
	elem, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.NoError(t, err)

	// below the threshold the cost ranking holds, at and above it the
	// forced protocol wins despite being more expensive
	require.Equal(t, "cheap", elem.ConfigAt(4095).Template.Name)
	require.Equal(t, "forced", elem.ConfigAt(4096).Template.Name)
	require.Equal(t, "forced", elem.ConfigAt(1<<30).Template.Name)
}

func TestConfigAtBelowMin(t *testing.T) {
	tmpl := flatTemplate("min100", 1e-6, nil)
	orig := tmpl.Init
	tmpl.Init = func(p *InitParams) (*Capability, interface{}, error) {
		caps, priv, err := orig(p)
		caps.MinLength = 100
		return caps, priv, err
	}
	s := newSelector(t, tmpl)
	elem, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.NoError(t, err)
	require.Nil(t, elem.ConfigAt(99))
	require.NotNil(t, elem.ConfigAt(100))
}

func TestLookupCache(t *testing.T) {
	inits := 0
	tmpl := &Template{
		Name: "counted",
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			inits++
			return &Capability{
				CfgThresh: ThreshAuto,
				Ranges: []PerfRange{{
					MaxLength: MaxLength,
					Perf: [PerfTypeLast]linfunc.Func{
						linfunc.Make(1e-6, 0),
						linfunc.Make(1e-6, 0),
					},
				}},
			}, nil, nil
		},
	}
	s := newSelector(t, tmpl)

	param := SelectParam{Op: OpRndvSend, Flags: FlagMultiSend}
	first, err := s.Lookup(param)
	require.NoError(t, err)
	second, err := s.Lookup(param)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, inits)

	// a different param is a different cache entry
	_, err = s.Lookup(SelectParam{Op: OpRndvRecv})
	require.NoError(t, err)
	require.Equal(t, 2, inits)
}

func TestSelectRangesCarryThresholds(t *testing.T) {
	sub := &Template{
		Name: "sub",
		Init: func(p *InitParams) (*Capability, interface{}, error) {
			return &Capability{
				CfgThresh: 1 << 20,
				Ranges: []PerfRange{
					{
						MaxLength: 8192,
						Perf: [PerfTypeLast]linfunc.Func{
							linfunc.Make(1e-6, 1e-9),
							linfunc.Make(0.5e-6, 1e-9),
						},
					},
					{
						MaxLength: MaxLength,
						Perf: [PerfTypeLast]linfunc.Func{
							linfunc.Make(2e-6, 1e-9),
							linfunc.Make(1e-6, 1e-9),
						},
					},
				},
			}, nil, nil
		},
	}
	s := newSelector(t, sub)
	elem, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.NoError(t, err)
	require.Len(t, elem.Ranges, 2)
	require.Equal(t, uint64(8192), elem.Ranges[0].MaxLength)
	require.Equal(t, MaxLength, elem.Ranges[1].MaxLength)
	for _, r := range elem.Ranges {
		require.Equal(t, uint64(1<<20), r.CfgThresh)
	}
}

func TestSizeStr(t *testing.T) {
	require.Equal(t, "0", SizeStr(0))
	require.Equal(t, "100", SizeStr(100))
	require.Equal(t, "8K", SizeStr(8192))
	require.Equal(t, "2M", SizeStr(2<<20))
	require.Equal(t, "4G", SizeStr(4<<30))
	require.Equal(t, "inf", SizeStr(MaxLength))
}

func TestElemDesc(t *testing.T) {
	s := newSelector(t, flatTemplate("solo", 1e-6, nil))
	elem, err := s.Lookup(SelectParam{Op: OpRndvSend})
	require.NoError(t, err)
	require.Equal(t, "0..inf:solo", elem.Desc(0, MaxLength))
	require.Equal(t, "1K..8K:solo", elem.Desc(1024, 8192))
}
