// Package fabric implements the worker: the single-context progress engine
// owning requests, lanes and protocol selection.
package fabric

import (
	"github.com/unifabric/fabric-base/utils/cachescale"
)

// Config of a worker.
type Config struct {
	// MaxFrags bounds the fragments concurrently in flight per worker.
	MaxFrags int
	// MaxFragSize bounds one pipelined fragment.
	MaxFragSize uint64
	// SelectCacheSize is the per-destination protocol-selection cache.
	SelectCacheSize int
	// RkeyCacheMaxWeight bounds the unpacked remote-key cache, in packed
	// bytes.
	RkeyCacheMaxWeight uint
	// RkeyCacheMaxSize bounds the number of cached remote keys.
	RkeyCacheMaxSize int
	// StatsNamespace prefixes the exported metrics.
	StatsNamespace string
}

// DefaultConfig for a regular worker.
func DefaultConfig(scale cachescale.Func) Config {
	return Config{
		MaxFrags:           scale.I(64),
		MaxFragSize:        512 << 10,
		SelectCacheSize:    scale.I(64),
		RkeyCacheMaxWeight: scale.U(512 << 10),
		RkeyCacheMaxSize:   scale.I(128),
		StatsNamespace:     "fabric",
	}
}

// LiteConfig is for tests and resource-constrained deployments.
func LiteConfig() Config {
	return DefaultConfig(cachescale.Ratio{Base: 4, Target: 1})
}
