package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/takaragames/gamecore/internal/session"
)

// Server is the accepting side of the reactor. Sessions live in a
// concurrent table for shutdown and status, and in a TTL tracker whose
// reaper implements the idle-recv kick: every receive completion
// refreshes the session's entry, so an eviction means nothing arrived
// for the whole idle window.
type Server struct {
	*Reactor

	maxSessions int
	ln          net.Listener
	sessions    sync.Map // uuid.UUID -> *session.Session
	idle        *expirable.LRU[uuid.UUID, *session.Session]
	acceptDone  chan struct{}
	listening   bool
}

// NewServer builds a stopped server.
func NewServer(log *slog.Logger, d *Dispatcher, opts ...Option) *Server {
	return &Server{Reactor: newReactor(log.With("component", "server"), d, opts...)}
}

// Listen binds the listen socket, starts the worker pool and the accept
// loop, and begins the idle sweep. Startup failures are returned to the
// caller; nothing is left running on error.
func (s *Server) Listen(bindIP string, port int, maxSessions int) error {
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	addr := net.JoinHostPort(bindIP, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.maxSessions = maxSessions
	s.listening = true

	if s.idleTimeout > 0 {
		s.idle = expirable.NewLRU[uuid.UUID, *session.Session](0, s.onIdleEvict, s.idleTimeout)
	}

	s.onOpen = func(sess *session.Session) {
		s.sessions.Store(sess.ID(), sess)
		if s.idle != nil {
			s.idle.Add(sess.ID(), sess)
		}
	}
	s.onClosed = func(sess *session.Session) {
		s.sessions.Delete(sess.ID())
		if s.idle != nil {
			s.idle.Remove(sess.ID())
		}
	}
	s.onActivity = func(sess *session.Session) {
		if s.idle != nil {
			s.idle.Add(sess.ID(), sess)
		}
	}

	s.startWorkers()
	s.acceptDone = make(chan struct{})
	go s.acceptLoop()

	s.log.Info("server listening",
		"addr", addr, "max_sessions", maxSessions, "workers", s.workers)
	return nil
}

// Addr returns the bound listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// onIdleEvict fires from the TTL reaper (and from explicit removals on
// clean teardown, which the staleness check filters out).
func (s *Server) onIdleEvict(id uuid.UUID, sess *session.Session) {
	if sess.Closing() {
		return
	}
	if time.Since(sess.LastRecv()) < s.idleTimeout {
		return
	}
	s.log.Info("kicking idle session", "session_id", id, "remote", sess.RemoteAddr())
	s.Disconnect(sess)
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}

		if s.Active() >= int64(s.maxSessions) {
			s.log.Warn("session pool exhausted, rejecting",
				"remote", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		sess := session.New(conn)
		s.startPumps(sess)
		s.deliver(event{s: sess, kind: evAccept})
	}
}

// Shutdown closes the listener, disconnects every session, waits for the
// outstanding I/O of each to drain (bounded by ctx), and stops the
// workers.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.listening {
		return nil
	}
	s.listening = false

	_ = s.ln.Close()
	<-s.acceptDone

	s.sessions.Range(func(_, v any) bool {
		s.Disconnect(v.(*session.Session))
		return true
	})

	err := s.waitDrained(ctx)
	s.stopWorkers()
	s.log.Info("server stopped", "err", err)
	return err
}

func (s *Server) waitDrained(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for s.Active() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown: %d sessions still draining: %w",
				s.Active(), ctx.Err())
		case <-tick.C:
		}
	}
	return nil
}
