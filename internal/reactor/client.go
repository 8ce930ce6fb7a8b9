package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/sony/gobreaker"

	"github.com/takaragames/gamecore/internal/session"
)

// Client is the connecting side of the reactor. It keeps a target
// connection count; the pending counter records how many connects are
// owed, and the reconnect worker wakes on a nudge or on its scan
// interval and issues that many dials. Dialing goes through a circuit
// breaker so a dead server costs one probe per window instead of a
// burst every scan.
type Client struct {
	*Reactor

	addr     string
	target   int
	pending  atomix.Int64
	notify   chan struct{}
	breaker  *gobreaker.CircuitBreaker
	sessions sync.Map // uuid.UUID -> *session.Session
	stopping atomix.Bool
	loopDone chan struct{}
	started  bool
}

// NewClient builds a stopped client.
func NewClient(log *slog.Logger, d *Dispatcher, opts ...Option) *Client {
	return &Client{Reactor: newReactor(log.With("component", "client"), d, opts...)}
}

// Pending returns how many connects are currently owed.
func (c *Client) Pending() int64 { return c.pending.Load() }

// Start begins maintaining target connections to the server. Connects
// are asynchronous; failures stay on the pending counter and are retried
// by the reconnect worker.
func (c *Client) Start(serverIP string, port int, target int) error {
	if target <= 0 {
		return fmt.Errorf("client: target connection count must be positive, got %d", target)
	}
	c.addr = net.JoinHostPort(serverIP, strconv.Itoa(port))
	c.target = target
	c.pending.Store(int64(target))
	c.notify = make(chan struct{}, 1)
	c.loopDone = make(chan struct{})

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gamecore-dial",
		MaxRequests: 1,
		Timeout:     c.reconnectInterval * 3,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	c.onOpen = func(sess *session.Session) {
		c.sessions.Store(sess.ID(), sess)
	}
	c.onClosed = func(sess *session.Session) {
		c.sessions.Delete(sess.ID())
		if c.stopping.LoadAcquire() {
			return
		}
		// The lost connection is owed again; nudge the scanner.
		c.pending.AddAcqRel(1)
		c.nudge()
	}

	c.startWorkers()
	go c.reconnectLoop()
	c.nudge()

	c.log.Info("client started", "addr", c.addr, "target", target)
	c.started = true
	return nil
}

func (c *Client) nudge() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// reconnectLoop is the reconnect worker: a timed wait (no busy-spin)
// that, once a scan interval elapses or a nudge arrives, issues as many
// dials as the pending counter records.
func (c *Client) reconnectLoop() {
	defer close(c.loopDone)
	timer := time.NewTimer(c.reconnectInterval)
	defer timer.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-c.notify:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		c.scan()
		timer.Reset(c.reconnectInterval)
	}
}

func (c *Client) scan() {
	owed := c.pending.Load()
	for i := int64(0); i < owed; i++ {
		res, err := c.breaker.Execute(func() (any, error) {
			// The dial binds a local ephemeral address before the
			// connect is issued, same as the completion-port path.
			return net.DialTimeout("tcp", c.addr, c.dialTimeout)
		})
		if err != nil {
			// Breaker open or dial failure: leave the remainder on the
			// counter for the next scan.
			c.log.Debug("connect attempt failed", "addr", c.addr, "err", err)
			return
		}
		conn := res.(net.Conn)
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		c.pending.AddAcqRel(-1)

		sess := session.New(conn)
		c.startPumps(sess)
		c.deliver(event{s: sess, kind: evConnect})
	}
}

// ForEachSession visits the live client sessions.
func (c *Client) ForEachSession(fn func(*session.Session) bool) {
	c.sessions.Range(func(_, v any) bool {
		return fn(v.(*session.Session))
	})
}

// Shutdown disconnects every session, waits for their I/O to drain
// (bounded by ctx), and stops the workers and the reconnect worker.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.started {
		return nil
	}
	c.started = false
	c.stopping.StoreRelease(true)

	c.sessions.Range(func(_, v any) bool {
		c.Disconnect(v.(*session.Session))
		return true
	})

	var err error
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for c.Active() > 0 {
		select {
		case <-ctx.Done():
			err = fmt.Errorf("shutdown: %d sessions still draining: %w",
				c.Active(), ctx.Err())
		case <-tick.C:
			continue
		}
		break
	}

	c.stopWorkers()
	<-c.loopDone
	c.log.Info("client stopped", "err", err)
	return err
}
