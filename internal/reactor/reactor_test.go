package reactor_test

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/takaragames/gamecore/internal/handler/echo"
	"github.com/takaragames/gamecore/internal/reactor"
	"github.com/takaragames/gamecore/internal/session"
	"github.com/takaragames/gamecore/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, d *reactor.Dispatcher, opts ...reactor.Option) (*reactor.Server, int) {
	t.Helper()
	opts = append([]reactor.Option{reactor.WithWorkers(2)}, opts...)
	srv := reactor.NewServer(testLogger(), d, opts...)
	require.NoError(t, srv.Listen("127.0.0.1", 0, 100))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, srv.Addr().(*net.TCPAddr).Port
}

func buildFrame(id uint32, payload []byte) []byte {
	frame := make([]byte, wire.HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(wire.HeaderSize+len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], id)
	copy(frame[wire.HeaderSize:], payload)
	return frame
}

// Scenario: echo round trip through a reactor server and a reactor
// client, one frame each way.
func TestEchoRoundTrip(t *testing.T) {
	sd := reactor.NewDispatcher()
	srv := reactor.NewServer(testLogger(), sd, reactor.WithWorkers(2))
	echo.RegisterServer(sd, srv)
	require.NoError(t, srv.Listen("127.0.0.1", 0, 100))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	port := srv.Addr().(*net.TCPAddr).Port

	cd := reactor.NewDispatcher()
	ctr := &echo.Counter{}
	echo.RegisterClient(cd, testLogger(), ctr)

	cl := reactor.NewClient(testLogger(), cd,
		reactor.WithWorkers(2),
		reactor.WithReconnectInterval(100*time.Millisecond),
	)
	cl.SetHooks(echo.NewClientHooks(cl, testLogger()))
	require.NoError(t, cl.Start("127.0.0.1", port, 1))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cl.Shutdown(ctx)
	})

	require.Eventually(t, func() bool { return ctr.Echoes() == 1 },
		5*time.Second, 10*time.Millisecond, "client never got its echo back")

	st := srv.Stats()
	require.Equal(t, int64(1), st.RecvFrames, "server must see exactly one frame")
}

// Scenario: three back-to-back frames in one TCP write, then the same
// three frames delivered one byte at a time, must both produce three
// in-order handler invocations.
func TestFramingResilience(t *testing.T) {
	const testID uint32 = 0x00000010

	var mu sync.Mutex
	var payloads []string
	d := reactor.NewDispatcher()
	d.Register(testID, func(_ *session.Session, pkt *wire.Packet) error {
		mu.Lock()
		payloads = append(payloads, string(pkt.Payload()))
		mu.Unlock()
		return nil
	})
	_, port := startServer(t, d)

	frames := [][]byte{
		buildFrame(testID, []byte("frame-01")),
		buildFrame(testID, []byte("frame-02")),
		buildFrame(testID, []byte("frame-03")),
	}
	var blob []byte
	for _, f := range frames {
		blob = append(blob, f...)
	}
	want := []string{"frame-01", "frame-02", "frame-03"}

	// One write, three frames.
	conn, err := net.Dial("tcp", srvAddr(port))
	require.NoError(t, err)
	_, err = conn.Write(blob)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 3
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Equal(t, want, payloads)
	payloads = nil
	mu.Unlock()
	_ = conn.Close()

	// Same bytes, one at a time.
	conn, err = net.Dial("tcp", srvAddr(port))
	require.NoError(t, err)
	defer conn.Close()
	for _, b := range blob {
		_, err = conn.Write([]byte{b})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 3
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Equal(t, want, payloads)
	mu.Unlock()
}

// Scenario: a frame claiming length 5,000,000 disconnects the session
// without invoking any handler, and the session count returns to zero.
func TestOversizeFrameDisconnects(t *testing.T) {
	var handled sync.Map
	d := reactor.NewDispatcher()
	d.Register(1, func(*session.Session, *wire.Packet) error {
		handled.Store("hit", true)
		return nil
	})
	srv, port := startServer(t, d)

	conn, err := net.Dial("tcp", srvAddr(port))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Active() == 1 },
		5*time.Second, 10*time.Millisecond)

	bad := make([]byte, wire.HeaderSize)
	binary.LittleEndian.PutUint32(bad[0:4], 5_000_000)
	binary.LittleEndian.PutUint32(bad[4:8], 1)
	_, err = conn.Write(bad)
	require.NoError(t, err)

	// The server must close on us.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err, "expected the server to drop the connection")

	require.Eventually(t, func() bool { return srv.Active() == 0 },
		5*time.Second, 10*time.Millisecond, "session count must decrement")

	_, hit := handled.Load("hit")
	require.False(t, hit, "no handler may run for an oversize frame")
}

// Scenario: a client configured for four connections with no server
// converges its pending counter to four without busy-spinning, then
// establishes exactly four once the server appears.
func TestClientReconnect(t *testing.T) {
	// Reserve a port with no listener on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cd := reactor.NewDispatcher()
	cl := reactor.NewClient(testLogger(), cd,
		reactor.WithWorkers(2),
		reactor.WithReconnectInterval(100*time.Millisecond),
	)
	require.NoError(t, cl.Start("127.0.0.1", port, 4))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cl.Shutdown(ctx)
	})

	// No server: every scan fails, the debt stays at four.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, int64(4), cl.Pending())
	require.Equal(t, int64(0), cl.Active())

	// Bring the server up on the reserved port.
	sd := reactor.NewDispatcher()
	srv := reactor.NewServer(testLogger(), sd, reactor.WithWorkers(2))
	require.NoError(t, srv.Listen("127.0.0.1", port, 100))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	require.Eventually(t, func() bool {
		return cl.Active() == 4 && cl.Pending() == 0
	}, 10*time.Second, 20*time.Millisecond, "client never re-established all connections")
	require.Eventually(t, func() bool { return srv.Active() == 4 },
		5*time.Second, 10*time.Millisecond)
}

// A handler that panics costs the session its connection and leaves the
// worker pool healthy.
func TestHandlerPanicDisconnects(t *testing.T) {
	const panicID uint32 = 0x20
	const okID uint32 = 0x21

	var okHits sync.Map
	d := reactor.NewDispatcher()
	d.Register(panicID, func(*session.Session, *wire.Packet) error {
		panic("handler bug")
	})
	d.Register(okID, func(s *session.Session, _ *wire.Packet) error {
		okHits.Store(s.RemoteAddr(), true)
		return nil
	})
	srv, port := startServer(t, d)

	bad, err := net.Dial("tcp", srvAddr(port))
	require.NoError(t, err)
	defer bad.Close()
	_, err = bad.Write(buildFrame(panicID, []byte("boom....")))
	require.NoError(t, err)

	_ = bad.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = bad.Read(make([]byte, 1))
	require.Error(t, err, "panicking handler must cost the session its connection")

	// The worker pool must still serve other sessions.
	good, err := net.Dial("tcp", srvAddr(port))
	require.NoError(t, err)
	defer good.Close()
	_, err = good.Write(buildFrame(okID, []byte("fine....")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n := 0
		okHits.Range(func(_, _ any) bool { n++; return true })
		return n == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Active() == 1 },
		5*time.Second, 10*time.Millisecond)
}

func srvAddr(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
