package proto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// SelectParam identifies one selection: the operation, its context flags and
// the payload class.
type SelectParam struct {
	Op    OpID
	Flags OpFlags
	Class DataClass
}

// PerfType is the cost curve used to rank candidates for these parameters.
func (p SelectParam) PerfType() PerfType {
	if p.Flags&FlagMultiSend != 0 {
		return PerfMulti
	}
	return PerfSingle
}

// Fingerprint is the cache key of the selection.
func (p SelectParam) Fingerprint() common.Hash {
	sum := sha256.Sum256([]byte{byte(p.Op), byte(p.Flags), byte(p.Class)})
	return common.BytesToHash(sum[:])
}

func (p SelectParam) String() string {
	return fmt.Sprintf("%s(flags=%x,class=%d)", p.Op, uint8(p.Flags), uint8(p.Class))
}

// Threshold maps lengths up to MaxLength (inclusive) to the selected config.
type Threshold struct {
	MaxLength uint64
	Config    *Config
}

// SelectRange is a perf range of the winning protocol, annotated with that
// protocol's configuration threshold.
type SelectRange struct {
	PerfRange
	CfgThresh uint64
}

// SelectElem is a finished selection: the piecewise-best protocol per length
// plus the stitched cost model of the winners.
type SelectElem struct {
	// MinLength below which no candidate serves.
	MinLength  uint64
	Thresholds []Threshold
	Ranges     []SelectRange
}

// ConfigAt resolves the protocol config serving the given length, or nil
// when the length is below every candidate's minimum.
func (e *SelectElem) ConfigAt(length uint64) *Config {
	if length < e.MinLength {
		return nil
	}
	for i := range e.Thresholds {
		if length <= e.Thresholds[i].MaxLength {
			return e.Thresholds[i].Config
		}
	}
	return nil
}

// ValidRange is the [min, max] interval of lengths the selection serves.
func (e *SelectElem) ValidRange() (minLength, maxLength uint64) {
	return e.MinLength, e.Thresholds[len(e.Thresholds)-1].MaxLength
}

// Desc renders the threshold table over the given interval.
func (e *SelectElem) Desc(minLength, maxLength uint64) string {
	var b strings.Builder
	lo := minLength
	if lo < e.MinLength {
		lo = e.MinLength
	}
	for i := range e.Thresholds {
		th := &e.Thresholds[i]
		if th.MaxLength < lo {
			continue
		}
		hi := th.MaxLength
		if hi > maxLength {
			hi = maxLength
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s..%s:%s", SizeStr(lo), SizeStr(hi), th.Config.Desc(lo, hi))
		if th.MaxLength >= maxLength {
			break
		}
		lo = th.MaxLength + 1
	}
	return b.String()
}

// Selector builds and caches selections for one destination (one remote-key
// configuration).
type Selector struct {
	registry     *Registry
	worker       Worker
	rkeyCfgIndex int
	cache        *lru.Cache
}

// NewSelector creates a selector over the registry for the destination
// identified by rkeyCfgIndex.
func NewSelector(registry *Registry, worker Worker, rkeyCfgIndex int, cacheSize int) (*Selector, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Selector{
		registry:     registry,
		worker:       worker,
		rkeyCfgIndex: rkeyCfgIndex,
		cache:        cache,
	}, nil
}

// Registry the selector ranks templates from.
func (s *Selector) Registry() *Registry {
	return s.registry
}

// Worker the selector builds capabilities against.
func (s *Selector) Worker() Worker {
	return s.worker
}

// RkeyCfgIndex is the destination the selector serves.
func (s *Selector) RkeyCfgIndex() int {
	return s.rkeyCfgIndex
}

// Lookup returns the selection for the parameters, building it on a cache
// miss. Returns ErrUnsupported when no registered protocol serves them.
func (s *Selector) Lookup(param SelectParam) (*SelectElem, error) {
	key := param.Fingerprint()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*SelectElem), nil
	}
	elem, err := s.LookupSlow(param)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, elem)
	return elem, nil
}

// Preload inserts an externally built selection, e.g. one restored from a
// tuning snapshot.
func (s *Selector) Preload(param SelectParam, elem *SelectElem) {
	s.cache.Add(param.Fingerprint(), elem)
}

type candidate struct {
	cfg  *Config
	caps *Capability
}

// LookupSlow builds the selection without consulting the cache: every
// registered template is asked for its capability and the results are ranked
// into a threshold table.
func (s *Selector) LookupSlow(param SelectParam) (*SelectElem, error) {
	var cands []candidate
	for _, tmpl := range s.registry.Templates() {
		caps, priv, err := tmpl.Init(&InitParams{
			Worker:       s.worker,
			Select:       s,
			Param:        param,
			RkeyCfgIndex: s.rkeyCfgIndex,
		})
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("init %s for %s: %w", tmpl.Name, param, err)
		}
		if err := caps.Validate(); err != nil {
			return nil, fmt.Errorf("capability of %s: %w", tmpl.Name, err)
		}
		cands = append(cands, candidate{
			cfg:  &Config{Template: tmpl, Priv: priv, Param: param},
			caps: caps,
		})
	}
	if len(cands) == 0 {
		return nil, ErrUnsupported
	}
	return buildElem(param, cands), nil
}

// buildElem ranks the candidates into contiguous piecewise-best thresholds.
func buildElem(param SelectParam, cands []candidate) *SelectElem {
	perfType := param.PerfType()

	// interval starts: every point where some candidate becomes valid or
	// crosses a range boundary
	starts := []uint64{0}
	minLength := MaxLength
	for _, c := range cands {
		if c.caps.MinLength < minLength {
			minLength = c.caps.MinLength
		}
		starts = append(starts, c.caps.MinLength)
		for _, r := range c.caps.Ranges {
			if r.MaxLength < MaxLength {
				starts = append(starts, r.MaxLength+1)
			}
		}
		if c.caps.CfgThresh != ThreshAuto {
			starts = append(starts, c.caps.CfgThresh)
		}
	}
	// crossover points where one candidate's cost curve overtakes another's,
	// so the ranking is re-evaluated on both sides
	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			starts = appendCrossovers(starts, &cands[i], &cands[j], perfType)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	elem := &SelectElem{MinLength: minLength}
	for i := 0; i < len(starts); i++ {
		if i > 0 && starts[i] == starts[i-1] {
			continue
		}
		lo := starts[i]
		hi := MaxLength
		for j := i + 1; j < len(starts); j++ {
			if starts[j] != lo {
				hi = starts[j] - 1
				break
			}
		}
		best := bestAt(cands, lo, perfType)
		if best == nil {
			continue
		}
		n := len(elem.Thresholds)
		if n > 0 && elem.Thresholds[n-1].Config == best.cfg {
			elem.Thresholds[n-1].MaxLength = hi
		} else {
			elem.Thresholds = append(elem.Thresholds, Threshold{MaxLength: hi, Config: best.cfg})
		}
		appendRanges(elem, best.caps, lo, hi)
	}
	return elem
}

// appendCrossovers collects the intersection points of two candidates' cost
// curves. Parallel curves never cross and contribute nothing.
func appendCrossovers(starts []uint64, a, b *candidate, perfType PerfType) []uint64 {
	for _, ra := range a.caps.Ranges {
		for _, rb := range b.caps.Ranges {
			x, ok := ra.Perf[perfType].Intersect(rb.Perf[perfType])
			if !ok || x == 0 || x >= MaxLength {
				continue
			}
			starts = append(starts, x, x+1)
		}
	}
	return starts
}

// bestAt picks the winner for the interval starting at lo. A protocol with a
// configuration threshold at or below lo is forced; otherwise the cheapest
// cost curve at lo wins, with priority breaking ties.
func bestAt(cands []candidate, lo uint64, perfType PerfType) *candidate {
	var best *candidate
	var bestForced bool
	var bestCost float64
	for i := range cands {
		c := &cands[i]
		if lo < c.caps.MinLength || lo > c.caps.MaxServed() {
			continue
		}
		forced := c.caps.CfgThresh != ThreshAuto && lo >= c.caps.CfgThresh
		cost := c.caps.rangeAt(lo).Perf[perfType].At(lo)
		switch {
		case best == nil,
			forced && !bestForced,
			forced == bestForced && cost < bestCost,
			forced == bestForced && cost == bestCost && c.caps.CfgPriority > best.caps.CfgPriority:
			best, bestForced, bestCost = c, forced, cost
		}
	}
	return best
}

// appendRanges stitches the winner's perf ranges clipped to [lo, hi] onto
// the element, carrying the winner's configuration threshold per range.
func appendRanges(elem *SelectElem, caps *Capability, lo, hi uint64) {
	for _, r := range caps.Ranges {
		if r.MaxLength < lo {
			continue
		}
		maxLength := r.MaxLength
		if maxLength > hi {
			maxLength = hi
		}
		n := len(elem.Ranges)
		if n > 0 && elem.Ranges[n-1].Perf == r.Perf && elem.Ranges[n-1].CfgThresh == caps.CfgThresh {
			elem.Ranges[n-1].MaxLength = maxLength
		} else {
			elem.Ranges = append(elem.Ranges, SelectRange{
				PerfRange: PerfRange{MaxLength: maxLength, Perf: r.Perf},
				CfgThresh: caps.CfgThresh,
			})
		}
		if r.MaxLength >= hi {
			return
		}
	}
}
