package session

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/takaragames/gamecore/internal/wire"
)

func newPipeSession(t *testing.T) *Session {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return New(a)
}

func TestMarkCloseIsOneWay(t *testing.T) {
	s := newPipeSession(t)
	require.False(t, s.Closing())
	require.True(t, s.MarkClose())
	require.True(t, s.Closing())
	require.False(t, s.MarkClose(), "second latch transition must fail")
}

func TestTryReleaseWinsExactlyOnce(t *testing.T) {
	s := newPipeSession(t)

	const contenders = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryRelease() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)
}

func TestSendLatchSingleInFlight(t *testing.T) {
	s := newPipeSession(t)
	require.True(t, s.TryBeginSend())
	require.False(t, s.TryBeginSend(), "second send must not start while one is in flight")
	s.EndSend()
	require.True(t, s.TryBeginSend())
}

func TestIOCountAccounting(t *testing.T) {
	s := newPipeSession(t)
	require.Equal(t, int64(1), s.AddIO(1))
	require.Equal(t, int64(2), s.AddIO(1))
	require.Equal(t, int64(1), s.AddIO(-1))
	require.Equal(t, int64(0), s.AddIO(-1))
}

func TestSendBatchBoundedByMaxSendMsg(t *testing.T) {
	s := newPipeSession(t)

	total := wire.MaxSendMsg + 25
	for i := 0; i < total; i++ {
		p := wire.NewPacket()
		require.NoError(t, p.AppendUint32(uint32(i)))
		p.Stamp(7)
		_, err := s.PushSend(p)
		require.NoError(t, err)
	}
	require.Equal(t, int64(total), s.SendPending())

	bufs, n := s.BuildSendBatch()
	require.Equal(t, wire.MaxSendMsg, n, "one gathered send carries at most MaxSendMsg packets")
	require.Len(t, bufs, wire.MaxSendMsg)
	require.Equal(t, int64(25), s.SendPending(), "excess stays queued for the next cycle")

	require.Equal(t, wire.MaxSendMsg, s.ReleaseSendBatch())
	s.DrainSendQueue()
	require.Equal(t, int64(0), s.SendPending())
}
