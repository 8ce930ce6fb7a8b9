package reactor

import (
	"net"

	"github.com/takaragames/gamecore/internal/session"
	"github.com/takaragames/gamecore/internal/wire"
)

// startPumps launches the session's transport goroutines. Each pump
// waits for its posted operation, performs the blocking socket call, and
// delivers the completion event. The pumps exit when the session's done
// channel closes at release, or when the reactor itself stops.
//
// Channels and socket are captured once: after release the session
// object returns to its pool and may be re-bound, and a straggling pump
// must keep seeing its own (closed) lifetime, never the next one's.
func (r *Reactor) startPumps(s *session.Session) {
	go r.recvPump(s, s.Conn(), s.Done(), s.RecvReady())
	go r.sendPump(s, s.Conn(), s.Done(), s.SendReady())
}

func (r *Reactor) recvPump(s *session.Session, conn net.Conn, done <-chan struct{}, ready <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ready:
		}

		span := s.Ring().WriteSpan()
		if span == nil {
			// The ring holds at least one maximum frame, so a full ring
			// without an extractable frame cannot happen with a sane
			// peer; surface it as a completion error.
			r.deliver(event{s: s, kind: evRecv, err: wire.ErrRingFull})
			continue
		}
		n, err := conn.Read(span)
		r.deliver(event{s: s, kind: evRecv, n: n, err: err})
	}
}

func (r *Reactor) sendPump(s *session.Session, conn net.Conn, done <-chan struct{}, ready <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ready:
		}

		bufs, cnt := s.BuildSendBatch()
		if cnt == 0 {
			r.deliver(event{s: s, kind: evSend})
			continue
		}
		// One gathered write covers the whole batch; net.Buffers loops
		// internally until everything is flushed or the socket fails.
		_, err := bufs.WriteTo(conn)
		r.deliver(event{s: s, kind: evSend, err: err})
	}
}

// deliver hands a completion to the workers. It must not drop events —
// every posted operation owes a decrement — so it only gives up when the
// reactor itself is shutting down.
func (r *Reactor) deliver(ev event) {
	select {
	case r.events <- ev:
	case <-r.quit:
	}
}
