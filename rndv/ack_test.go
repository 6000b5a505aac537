package rndv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unifabric/fabric-base/transport"
)

func TestPickAckLane(t *testing.T) {
	slow := &stubLane{attrs: transport.Attrs{Latency: 5e-6, Overhead: 100e-9, MaxBcopy: 256}}
	fast := &stubLane{attrs: transport.Attrs{Latency: 1e-6, Overhead: 50e-9, MaxBcopy: 256}}
	tiny := &stubLane{attrs: transport.Attrs{Latency: 0.1e-6, Overhead: 1e-9, MaxBcopy: 8}}

	// the lowest per-record time wins; lanes unable to carry the record do
	// not count
	require.Equal(t, transport.Lane(fast), pickAckLane([]transport.Lane{slow, fast, tiny}))
	require.Nil(t, pickAckLane([]transport.Lane{tiny}))
	require.Nil(t, pickAckLane(nil))
}

func TestAckTime(t *testing.T) {
	lane := &stubLane{attrs: transport.Attrs{Latency: 1e-6, Overhead: 50e-9, Bandwidth: 1e9, MaxBcopy: 256}}
	f := ackTime(lane)
	require.Equal(t, 1e-6+50e-9, f.C)
	require.Equal(t, 0.0, f.M)
	// constant in the transfer length
	require.Equal(t, f.At(0), f.At(1<<30))
}
