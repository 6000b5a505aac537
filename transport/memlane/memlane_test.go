package memlane

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unifabric/fabric-base/memreg"
	"github.com/unifabric/fabric-base/transfer"
	"github.com/unifabric/fabric-base/transport"
)

func TestSendAM(t *testing.T) {
	a, b := NewPair(DefaultConfig())

	var gotID transport.AMID
	var gotPayload []byte
	b.SetAMHandler(func(id transport.AMID, payload []byte) {
		gotID = id
		gotPayload = payload
	})

	payload := []byte("hello")
	require.NoError(t, a.SendAM(7, payload))
	// the record was copied: mutating the source does not affect delivery
	payload[0] = 'X'

	require.Equal(t, 0, a.Progress())
	require.Equal(t, 1, b.Progress())
	require.Equal(t, transport.AMID(7), gotID)
	require.Equal(t, []byte("hello"), gotPayload)
}

func TestAMTooLong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Attrs.MaxBcopy = 4
	a, _ := NewPair(cfg)
	require.ErrorIs(t, a.SendAM(1, make([]byte, 5)), transport.ErrTooLong)
}

func TestPutZcopy(t *testing.T) {
	a, b := NewPair(DefaultConfig())
	_ = b

	domain := memreg.NewProcDomain(1)
	remote := make([]byte, 16)
	seg, err := domain.Register(remote)
	require.NoError(t, err)
	rkey, err := domain.Unpack(domain.Pack(seg))
	require.NoError(t, err)

	completed := false
	data := []byte("0123")
	require.NoError(t, a.PutZcopy(data, seg.Address+4, rkey, func(err error) {
		require.NoError(t, err)
		completed = true
	}))

	// data lands on the peer's progress, the completion on the initiator's
	require.False(t, completed)
	require.Equal(t, 1, b.Progress())
	require.Equal(t, []byte("0123"), remote[4:8])
	require.False(t, completed)
	require.Equal(t, 1, a.Progress())
	require.True(t, completed)
}

func TestGetZcopy(t *testing.T) {
	a, b := NewPair(DefaultConfig())

	domain := memreg.NewProcDomain(1)
	remote := []byte("abcdefgh")
	seg, err := domain.Register(remote)
	require.NoError(t, err)
	rkey, err := domain.Unpack(domain.Pack(seg))
	require.NoError(t, err)

	data := make([]byte, 4)
	completed := false
	require.NoError(t, a.GetZcopy(data, seg.Address+2, rkey, func(err error) {
		require.NoError(t, err)
		completed = true
	}))
	b.Progress()
	a.Progress()
	require.True(t, completed)
	require.Equal(t, []byte("cdef"), data)
}

func TestBadRemoteWindow(t *testing.T) {
	a, _ := NewPair(DefaultConfig())

	domain := memreg.NewProcDomain(1)
	seg, err := domain.Register(make([]byte, 4))
	require.NoError(t, err)
	rkey, err := domain.Unpack(domain.Pack(seg))
	require.NoError(t, err)

	err = a.PutZcopy(make([]byte, 8), seg.Address, rkey, func(error) {})
	require.ErrorIs(t, err, memreg.ErrOutOfRange)
}

func TestSendQuota(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInflight = transfer.Metric{Num: 2, Size: 1 << 20}
	a, b := NewPair(cfg)
	b.SetAMHandler(func(transport.AMID, []byte) {})

	require.NoError(t, a.SendAM(1, []byte("x")))
	require.NoError(t, a.SendAM(1, []byte("y")))
	require.ErrorIs(t, a.SendAM(1, []byte("z")), transport.ErrNoResource)

	// quota is returned once the peer consumed the records
	b.Progress()
	require.NoError(t, a.SendAM(1, []byte("z")))
}
