// Package reactor implements the I/O layer: a completion-event loop over
// TCP with a configurable worker pool, per-session transport pumps, the
// framing/dispatch receive path, the single-in-flight gathered send
// path, the server accept surface, and the client reconnect surface.
//
// The shape mirrors a completion-port design. Blocking socket calls live
// in per-session pump goroutines; each finished operation becomes a
// completion event on a shared queue, and N workers consume events, run
// framing and handlers, and post the next operation. Posting increments
// the session's outstanding-I/O count, consuming decrements it, and the
// session is released exactly once when the count reaches zero with the
// disconnect latch set.
package reactor

import (
	"errors"
	"log/slog"
	"net"
	"runtime"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"golang.org/x/sync/errgroup"

	"github.com/takaragames/gamecore/internal/session"
	"github.com/takaragames/gamecore/internal/wire"
)

type eventKind uint8

const (
	evAccept eventKind = iota
	evConnect
	evRecv
	evSend
)

// event is one completion: which session, which operation, how many
// bytes, and the transport error if any.
type event struct {
	s    *session.Session
	kind eventKind
	n    int
	err  error
}

// SessionHooks is the application surface for connection lifecycle. The
// connect hook runs before the first receive is posted; the disconnect
// hook runs exactly once, during final release — and never for a
// session that failed before its connect hook ran.
type SessionHooks interface {
	OnSessionConnect(*session.Session)
	OnSessionDisconnect(*session.Session)
}

// Stats is a point-in-time counter snapshot for the operator console.
type Stats struct {
	Active     int64
	Opened     int64
	Closed     int64
	RecvFrames int64
	SentFrames int64
}

// Option configures a reactor.
type Option func(*Reactor)

// WithWorkers sets the completion worker pool width.
func WithWorkers(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithEventBacklog sets the completion queue depth.
func WithEventBacklog(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.backlog = n
		}
	}
}

// WithSendOverflow sets the queued-packet depth past which a session is
// considered overloaded and disconnected.
func WithSendOverflow(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.sendOverflow = n
		}
	}
}

// WithStrictUnknown makes an unregistered packet id a protocol error
// instead of a logged skip.
func WithStrictUnknown(strict bool) Option {
	return func(r *Reactor) { r.strictUnknown = strict }
}

// WithHooks installs the session lifecycle hooks.
func WithHooks(h SessionHooks) Option {
	return func(r *Reactor) { r.hooks = h }
}

// WithIdleTimeout sets the idle-recv kick threshold (server). Zero
// disables the sweep.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Reactor) { r.idleTimeout = d }
}

// WithReconnectInterval sets the client reconnect scan period.
func WithReconnectInterval(d time.Duration) Option {
	return func(r *Reactor) {
		if d > 0 {
			r.reconnectInterval = d
		}
	}
}

// WithDialTimeout bounds a single client connect attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(r *Reactor) {
		if d > 0 {
			r.dialTimeout = d
		}
	}
}

// Reactor is the shared completion machinery under Server and Client.
type Reactor struct {
	log        *slog.Logger
	dispatcher *Dispatcher
	hooks      SessionHooks

	workers       int
	backlog       int
	sendOverflow  int
	strictUnknown bool

	idleTimeout       time.Duration
	reconnectInterval time.Duration
	dialTimeout       time.Duration

	events chan event
	quit   chan struct{}
	group  *errgroup.Group

	// onOpen/onClosed/onActivity are the owner's (server/client)
	// bookkeeping taps, run on workers around the session's lifetime.
	onOpen     func(*session.Session)
	onClosed   func(*session.Session)
	onActivity func(*session.Session)

	active atomix.Int64
	stats  struct {
		opened atomix.Int64
		closed atomix.Int64
		recv   atomix.Int64
		sent   atomix.Int64
	}
}

func newReactor(log *slog.Logger, d *Dispatcher, opts ...Option) *Reactor {
	r := &Reactor{
		log:               log,
		dispatcher:        d,
		workers:           defaultWorkers(),
		backlog:           4096,
		sendOverflow:      1024,
		idleTimeout:       60 * time.Second,
		reconnectInterval: time.Second,
		dialTimeout:       5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultWorkers() int {
	// Hardware concurrency, per the completion-port convention.
	return maxInt(1, runtime.NumCPU())
}

func (r *Reactor) startWorkers() {
	r.events = make(chan event, r.backlog)
	r.quit = make(chan struct{})
	r.group = &errgroup.Group{}
	for i := 0; i < r.workers; i++ {
		r.group.Go(r.worker)
	}
}

func (r *Reactor) stopWorkers() {
	close(r.quit)
	_ = r.group.Wait()
}

// SetHooks installs the lifecycle hooks after construction. Must happen
// before the reactor starts; the field is read by workers without locks.
func (r *Reactor) SetHooks(h SessionHooks) { r.hooks = h }

// Stats snapshots the counters.
func (r *Reactor) Stats() Stats {
	return Stats{
		Active:     r.active.Load(),
		Opened:     r.stats.opened.Load(),
		Closed:     r.stats.closed.Load(),
		RecvFrames: r.stats.recv.Load(),
		SentFrames: r.stats.sent.Load(),
	}
}

// Active returns the live session count.
func (r *Reactor) Active() int64 { return r.active.Load() }

func (r *Reactor) worker() error {
	for {
		select {
		case <-r.quit:
			return nil
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Reactor) handle(ev event) {
	switch ev.kind {
	case evAccept, evConnect:
		r.onSessionOpen(ev.s)
	case evRecv:
		r.onRecvComplete(ev.s, ev.n, ev.err)
		r.decIO(ev.s)
	case evSend:
		r.onSendComplete(ev.s, ev.err)
		r.decIO(ev.s)
	}
}

// onSessionOpen finishes session setup on a worker: bookkeeping, the
// connect hook, and the first posted receive.
func (r *Reactor) onSessionOpen(s *session.Session) {
	r.active.Add(1)
	r.stats.opened.Add(1)
	if r.onOpen != nil {
		r.onOpen(s)
	}
	if r.hooks != nil {
		r.hooks.OnSessionConnect(s)
	}
	r.postRecv(s)
}

// --- receive path ---

func (r *Reactor) postRecv(s *session.Session) {
	s.AddIO(1)
	select {
	case s.RecvReady() <- struct{}{}:
	default:
		// A recv is already pending; the extra wakeup is harmless but
		// indicates a double post.
		r.log.Error("duplicate recv post", "session_id", s.ID())
		r.decIO(s)
	}
}

func (r *Reactor) onRecvComplete(s *session.Session, n int, err error) {
	if err != nil || n == 0 {
		// Zero bytes is the peer's FIN; anything else is a transport
		// error or our own cancellation.
		if err != nil && !s.Closing() && !errors.Is(err, net.ErrClosed) {
			r.log.Debug("recv failed", "session_id", s.ID(), "err", err)
		}
		r.Disconnect(s)
		return
	}

	ring := s.Ring()
	if cerr := ring.CommitWrite(n); cerr != nil {
		r.log.Error("recv commit overflow", "session_id", s.ID(), "err", cerr)
		r.Disconnect(s)
		return
	}
	s.Touch()
	if r.onActivity != nil {
		r.onActivity(s)
	}

	// Framing loop: peel whole frames off the ring until a partial one
	// remains. Receive order is preserved — one worker owns this
	// session's completion and the loop is sequential.
	var hdr [wire.HeaderSize]byte
	for {
		if ring.Used() < wire.HeaderSize {
			break
		}
		_ = ring.Peek(hdr[:])
		h := wire.ParseHeader(hdr[:])
		if verr := h.Validate(); verr != nil {
			r.log.Warn("protocol error",
				"session_id", s.ID(), "remote", s.RemoteAddr(),
				"length", h.Length, "err", verr)
			r.Disconnect(s)
			return
		}
		if int(h.Length) > ring.Used() {
			break
		}

		pkt := wire.NewPacket()
		_ = ring.Discard(wire.HeaderSize)
		span, _ := pkt.AppendSpan(int(h.Length) - wire.HeaderSize)
		_ = ring.Dequeue(span)
		pkt.SetPacketID(h.PacketID)

		r.stats.recv.Add(1)
		r.dispatch(s, pkt)
		pkt.Release()

		if s.Closing() {
			return
		}
	}

	if !s.Closing() {
		r.postRecv(s)
	}
}

// dispatch routes one frame to its registered handler. A handler runs on
// this worker; work that must serialize with an object's state is posted
// to that object's job queue by the handler itself. A panicking or
// failing handler costs the session its connection, never the worker.
func (r *Reactor) dispatch(s *session.Session, pkt *wire.Packet) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panicked",
				"session_id", s.ID(), "packet_id", pkt.PacketID(), "panic", p)
			r.Disconnect(s)
		}
	}()

	h, ok := r.dispatcher.lookup(pkt.PacketID())
	if !ok {
		if r.strictUnknown {
			r.log.Warn("unknown packet id, strict policy",
				"session_id", s.ID(), "packet_id", pkt.PacketID())
			r.Disconnect(s)
			return
		}
		r.log.Debug("unknown packet id ignored",
			"session_id", s.ID(), "packet_id", pkt.PacketID())
		return
	}

	if err := h(s, pkt); err != nil {
		r.log.Warn("handler failed",
			"session_id", s.ID(), "packet_id", pkt.PacketID(), "err", err)
		r.Disconnect(s)
	}
}

// --- send path ---

// Send stamps nothing and copies nothing: it takes an enqueue reference
// on pkt, queues it, and arms a gathered send if none is in flight. The
// caller keeps its own reference. Returns false when the session is
// closing or overloaded. An overloaded session is disconnected; a packet
// that already entered its queue is released when the session is torn
// down.
//
// The outstanding-I/O count is held across the call so a racing
// disconnect cannot finalize the session mid-send. Callers must not
// keep a session pointer past its disconnect hook.
func (r *Reactor) Send(s *session.Session, pkt *wire.Packet) bool {
	s.AddIO(1)
	defer r.decIO(s)

	if s.Closing() {
		return false
	}
	pkt.Retain()
	depth, err := s.PushSend(pkt)
	if err != nil {
		pkt.Release()
		if iox.IsWouldBlock(err) {
			r.log.Warn("send queue full", "session_id", s.ID())
		} else {
			r.log.Error("send enqueue failed", "session_id", s.ID(), "err", err)
		}
		r.Disconnect(s)
		return false
	}
	if depth > int64(r.sendOverflow) {
		r.log.Warn("send queue overflow", "session_id", s.ID(), "depth", depth)
		r.Disconnect(s)
		return false
	}
	r.trySend(s)
	return true
}

// trySend arms the single-in-flight send latch and posts a gathered
// send. The empty re-check mirrors the latch hand-off: a competing
// producer that lost the latch race must not leave queued packets
// behind a cleared latch.
func (r *Reactor) trySend(s *session.Session) {
	for {
		if s.SendPending() == 0 {
			return
		}
		if !s.TryBeginSend() {
			return
		}
		if s.SendPending() > 0 {
			r.postSend(s)
			return
		}
		s.EndSend()
	}
}

func (r *Reactor) postSend(s *session.Session) {
	s.AddIO(1)
	select {
	case s.SendReady() <- struct{}{}:
	default:
		r.log.Error("duplicate send post", "session_id", s.ID())
	}
}

func (r *Reactor) onSendComplete(s *session.Session, err error) {
	released := s.ReleaseSendBatch()
	r.stats.sent.Add(int64(released))
	s.EndSend()

	if err != nil {
		if !s.Closing() && !errors.Is(err, net.ErrClosed) {
			r.log.Debug("send failed", "session_id", s.ID(), "err", err)
		}
		r.Disconnect(s)
		return
	}
	if !s.Closing() && s.SendPending() > 0 {
		r.trySend(s)
	}
}

// --- disconnect and release ---

// Disconnect requests teardown. One-way and idempotent: the first call
// latches pending-disconnect and cancels outstanding operations by
// closing the socket; cleanup itself waits for the outstanding-I/O
// count to drain to zero.
func (r *Reactor) Disconnect(s *session.Session) {
	if !s.MarkClose() {
		return
	}
	if c := s.Conn(); c != nil {
		_ = c.Close()
	}
}

func (r *Reactor) decIO(s *session.Session) {
	if s.AddIO(-1) == 0 && s.Closing() {
		if s.TryRelease() {
			r.release(s)
		}
	}
}

// release is the single finalization point: pumps are told to exit,
// queued sends are returned to the pool, bookkeeping and the disconnect
// hook run, and the session goes back to its pool.
func (r *Reactor) release(s *session.Session) {
	s.CloseDone()
	s.DrainSendQueue()

	r.active.Add(-1)
	r.stats.closed.Add(1)

	if r.onClosed != nil {
		r.onClosed(s)
	}
	if r.hooks != nil {
		r.hooks.OnSessionDisconnect(s)
	}
	s.Recycle()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
