// Package session holds the per-connection state machine. A session owns
// its socket, receive ring, and send queue; the reactor owns the session
// for as long as any I/O is outstanding, counted by an atomic that gates
// the one-shot release.
package session

import (
	"net"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
	"github.com/google/uuid"

	"github.com/takaragames/gamecore/internal/wire"
)

// SendQueueCap bounds the per-session send queue. A producer that finds
// the queue full is overloading the session; the reactor disconnects it
// rather than block.
const SendQueueCap = 1024

// Session is one TCP connection's state. Latches and counters follow the
// reactor discipline:
//
//   - ioCount counts posted-but-uncompleted operations; storage stays
//     live until it reaches zero.
//   - sendBusy guarantees at most one gathered send in flight.
//   - closing is the one-way pending-disconnect latch.
//   - released guards final cleanup so it runs exactly once even when a
//     late completion races the disconnect.
type Session struct {
	id     uuid.UUID
	conn   net.Conn
	remote string

	recvBuf *wire.Ring
	sendQ   *lfq.MPSC[*wire.Packet]
	queued  atomix.Int64

	// In-kernel send batch: packets handed to the current gathered send,
	// released together on its completion.
	batch    [wire.MaxSendMsg]*wire.Packet
	batchLen int
	iov      net.Buffers

	ioCount  atomix.Int64
	sendBusy atomix.Int32
	closing  atomix.Int32
	released atomix.Int32

	lastRecv atomix.Int64

	// Pump wakeups. Capacity one: posting an operation that is already
	// pending is a reactor bug, not a queueing concern.
	recvReady chan struct{}
	sendReady chan struct{}

	// done closes at final release; pumps exit on it.
	done chan struct{}

	// owner is the application object bound to this connection (the
	// User). Written by the connect hook and read by handlers, both on
	// reactor workers for this session.
	owner any
}

var sessionPool = sync.Pool{
	New: func() any {
		return &Session{
			recvBuf: wire.NewRing(wire.DefaultRingSize),
			sendQ:   lfq.NewMPSC[*wire.Packet](SendQueueCap),
		}
	},
}

// New takes a session from the pool and binds it to conn.
func New(conn net.Conn) *Session {
	s := sessionPool.Get().(*Session)
	s.reset(conn)
	return s
}

// reset wipes pooled state. The previous owner's release path drains
// the queues; the extra drain here catches a producer that raced the
// release and would otherwise leak its packet into the next lifetime.
func (s *Session) reset(conn net.Conn) {
	s.DrainSendQueue()
	s.queued.Store(0)
	s.id = uuid.New()
	s.conn = conn
	s.remote = conn.RemoteAddr().String()
	s.recvBuf.Clear()
	s.batchLen = 0
	s.iov = s.iov[:0]
	s.ioCount.Store(0)
	s.sendBusy.Store(0)
	s.closing.Store(0)
	s.released.Store(0)
	s.lastRecv.Store(time.Now().UnixNano())
	s.recvReady = make(chan struct{}, 1)
	s.sendReady = make(chan struct{}, 1)
	s.done = make(chan struct{})
	s.owner = nil
}

// Recycle returns the session to the pool. Only the release path may
// call it, after the done channel is closed and the queues are drained.
func (s *Session) Recycle() {
	s.conn = nil
	s.owner = nil
	sessionPool.Put(s)
}

// ID returns the connection identity.
func (s *Session) ID() uuid.UUID { return s.id }

// Conn returns the underlying socket.
func (s *Session) Conn() net.Conn { return s.conn }

// RemoteAddr returns the peer address captured at bind time.
func (s *Session) RemoteAddr() string { return s.remote }

// Ring returns the receive ring buffer.
func (s *Session) Ring() *wire.Ring { return s.recvBuf }

// Owner returns the application object bound to the session.
func (s *Session) Owner() any { return s.owner }

// SetOwner binds the application object. Reactor workers only.
func (s *Session) SetOwner(o any) { s.owner = o }

// Touch records receive activity for the idle sweep.
func (s *Session) Touch() { s.lastRecv.Store(time.Now().UnixNano()) }

// LastRecv returns the time of the last receive completion.
func (s *Session) LastRecv() time.Time {
	return time.Unix(0, s.lastRecv.Load())
}

// --- latches and counters ---

// AddIO adjusts the outstanding-I/O count and returns the new value.
func (s *Session) AddIO(delta int64) int64 { return s.ioCount.AddAcqRel(delta) }

// MarkClose sets the pending-disconnect latch. Returns true on the first
// transition only.
func (s *Session) MarkClose() bool { return s.closing.CompareAndSwapAcqRel(0, 1) }

// Closing reports whether disconnect is pending.
func (s *Session) Closing() bool { return s.closing.LoadAcquire() != 0 }

// TryRelease wins the right to run final cleanup. Exactly one caller
// succeeds over the session's lifetime.
func (s *Session) TryRelease() bool { return s.released.CompareAndSwapAcqRel(0, 1) }

// TryBeginSend sets the send-in-flight latch. Returns false when a
// gathered send is already outstanding.
func (s *Session) TryBeginSend() bool { return s.sendBusy.CompareAndSwapAcqRel(0, 1) }

// EndSend clears the send-in-flight latch.
func (s *Session) EndSend() { s.sendBusy.StoreRelease(0) }

// --- send queue ---

// PushSend enqueues a packet and returns the resulting queue depth. The
// caller is responsible for the packet's enqueue reference.
func (s *Session) PushSend(p *wire.Packet) (int64, error) {
	if err := s.sendQ.Enqueue(&p); err != nil {
		return s.queued.Load(), err
	}
	return s.queued.AddAcqRel(1), nil
}

// SendPending returns the approximate send queue depth.
func (s *Session) SendPending() int64 { return s.queued.LoadAcquire() }

// BuildSendBatch moves up to MaxSendMsg queued packets into the in-kernel
// batch and returns the gather list of their stamped frames. Single
// consumer: only the send pump calls this while the session is live.
func (s *Session) BuildSendBatch() (net.Buffers, int) {
	n := 0
	for n < wire.MaxSendMsg {
		p, err := s.sendQ.Dequeue()
		if err != nil {
			break
		}
		s.queued.Add(-1)
		s.batch[n] = p
		n++
	}
	s.batchLen = n
	s.iov = s.iov[:0]
	for i := 0; i < n; i++ {
		s.iov = append(s.iov, s.batch[i].Frame())
	}
	return s.iov, n
}

// ReleaseSendBatch releases every packet in the completed batch and
// returns how many there were.
func (s *Session) ReleaseSendBatch() int {
	n := s.batchLen
	for i := 0; i < n; i++ {
		s.batch[i].Release()
		s.batch[i] = nil
	}
	s.batchLen = 0
	return n
}

// DrainSendQueue releases the batch and every still-queued packet. Part
// of final cleanup, after the pumps have exited.
func (s *Session) DrainSendQueue() {
	s.ReleaseSendBatch()
	for {
		p, err := s.sendQ.Dequeue()
		if err != nil {
			return
		}
		s.queued.Add(-1)
		p.Release()
	}
}

// --- pump wiring ---

// RecvReady is the recv pump's wakeup channel.
func (s *Session) RecvReady() chan struct{} { return s.recvReady }

// SendReady is the send pump's wakeup channel.
func (s *Session) SendReady() chan struct{} { return s.sendReady }

// Done closes when the session is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseDone signals the pumps to exit. Release path only.
func (s *Session) CloseDone() { close(s.done) }
