// Package echo wires the echo application: a server handler that
// mirrors payloads back, and a client handler that counts round trips.
// It doubles as the smallest complete example of the dispatch surface.
package echo

import (
	"log/slog"

	"code.hybscloud.com/atomix"

	"github.com/takaragames/gamecore/internal/reactor"
	"github.com/takaragames/gamecore/internal/session"
	"github.com/takaragames/gamecore/internal/wire"
)

// PacketID is the echo message id on both directions.
const PacketID uint32 = 0x00000001

// Sender is the slice of the reactor the handlers need.
type Sender interface {
	Send(*session.Session, *wire.Packet) bool
}

// RegisterServer installs the mirror handler.
func RegisterServer(d *reactor.Dispatcher, rt Sender) {
	d.Register(PacketID, func(s *session.Session, pkt *wire.Packet) error {
		out := wire.NewPacket()
		if err := out.AppendBytes(pkt.Payload()); err != nil {
			out.Release()
			return err
		}
		out.Stamp(PacketID)
		rt.Send(s, out)
		out.Release()
		return nil
	})
}

// Counter tallies client-side round trips.
type Counter struct {
	echoes atomix.Int64
}

// Echoes returns the number of completed round trips.
func (c *Counter) Echoes() int64 { return c.echoes.Load() }

// RegisterClient installs the client handler: it counts every echoed
// frame; the payload is not compared with what was sent.
func RegisterClient(d *reactor.Dispatcher, log *slog.Logger, c *Counter) {
	d.Register(PacketID, func(s *session.Session, pkt *wire.Packet) error {
		c.echoes.Add(1)
		log.Debug("echo round trip",
			"session_id", s.ID(), "bytes", pkt.PayloadLen())
		return nil
	})
}

// ClientHooks greets the server on every fresh connection so the echo
// loop has something to mirror.
type ClientHooks struct {
	rt  Sender
	log *slog.Logger
}

// NewClientHooks builds the client lifecycle hooks.
func NewClientHooks(rt Sender, log *slog.Logger) *ClientHooks {
	return &ClientHooks{rt: rt, log: log}
}

func (h *ClientHooks) OnSessionConnect(s *session.Session) {
	h.log.Info("connected", "session_id", s.ID(), "remote", s.RemoteAddr())
	SendPing(h.rt, s, []byte("hello!!!"))
}

func (h *ClientHooks) OnSessionDisconnect(s *session.Session) {
	h.log.Info("disconnected", "session_id", s.ID(), "remote", s.RemoteAddr())
}

// SendPing builds and queues one echo frame with the given payload.
func SendPing(rt Sender, s *session.Session, payload []byte) bool {
	out := wire.NewPacket()
	if err := out.AppendBytes(payload); err != nil {
		out.Release()
		return false
	}
	out.Stamp(PacketID)
	ok := rt.Send(s, out)
	out.Release()
	return ok
}
