package reactor

import (
	"encoding/json"
	"fmt"

	"github.com/takaragames/gamecore/internal/session"
	"github.com/takaragames/gamecore/internal/wire"
)

// HandlerFunc processes one decoded frame for a session. It runs on the
// reactor worker that delivered the frame; returning an error (or
// panicking) disconnects the session. Handlers that must serialize with
// game state post a job to the owning object instead of touching it.
type HandlerFunc func(*session.Session, *wire.Packet) error

// Dispatcher is the packet-id routing table. It is populated once at
// startup, before any worker runs, and read without locks afterwards.
type Dispatcher struct {
	handlers map[uint32]HandlerFunc
}

// NewDispatcher returns an empty table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint32]HandlerFunc)}
}

// Register installs the handler for id. Startup only; a duplicate id is
// a wiring bug and panics.
func (d *Dispatcher) Register(id uint32, h HandlerFunc) {
	if _, dup := d.handlers[id]; dup {
		panic(fmt.Sprintf("reactor: duplicate handler for packet id %#08x", id))
	}
	d.handlers[id] = h
}

func (d *Dispatcher) lookup(id uint32) (HandlerFunc, bool) {
	h, ok := d.handlers[id]
	return h, ok
}

// Bind adapts a typed handler: the frame payload is decoded as JSON into
// T before the callback runs. The wire schema of message bodies is the
// application's business; JSON is the default body codec here, and a
// payload that fails to decode is a protocol error that disconnects the
// session.
func Bind[T any](fn func(*session.Session, *T) error) HandlerFunc {
	return func(s *session.Session, pkt *wire.Packet) error {
		msg := new(T)
		if err := json.Unmarshal(pkt.Payload(), msg); err != nil {
			return fmt.Errorf("decode packet %#08x: %w", pkt.PacketID(), err)
		}
		return fn(s, msg)
	}
}
