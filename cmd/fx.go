package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/takaragames/gamecore/config"
	"github.com/takaragames/gamecore/internal/game"
	"github.com/takaragames/gamecore/internal/handler/echo"
	"github.com/takaragames/gamecore/internal/reactor"
	"github.com/takaragames/gamecore/internal/session"
)

// ServerParams carries the command-line surface into the fx graph.
type ServerParams struct {
	BindIP string
	Port   int
}

// ClientParams mirrors ServerParams for the connecting side.
type ClientParams struct {
	ServerIP string
	Port     int
	Count    int
}

// sessionLog is the default lifecycle hook set: it logs connects and
// disconnects. Applications replace it to attach their User objects.
type sessionLog struct {
	log *slog.Logger
}

var _ reactor.SessionHooks = (*sessionLog)(nil)

func (h *sessionLog) OnSessionConnect(s *session.Session) {
	h.log.Info("session connected", "session_id", s.ID(), "remote", s.RemoteAddr())
}

func (h *sessionLog) OnSessionDisconnect(s *session.Session) {
	h.log.Info("session disconnected", "session_id", s.ID(), "remote", s.RemoteAddr())
}

// NewServerApp assembles the echo game server: config, logger, logic
// world, dispatcher, and the accepting reactor, with the echo handler
// registered at startup.
func NewServerApp(cfg *config.Config, params ServerParams) *fx.App {
	return fx.New(
		fx.NopLogger,
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWorld,
			reactor.NewDispatcher,
			ProvideServer,
		),
		fx.Invoke(func(d *reactor.Dispatcher, srv *reactor.Server) {
			echo.RegisterServer(d, srv)
			SetStatus(func() string {
				st := srv.Stats()
				return fmt.Sprintf("sessions=%d opened=%d closed=%d recv=%d sent=%d",
					st.Active, st.Opened, st.Closed, st.RecvFrames, st.SentFrames)
			})
		}),
		fx.Invoke(func(lc fx.Lifecycle, w *game.World, srv *reactor.Server) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					w.Start()
					return srv.Listen(params.BindIP, params.Port, cfg.MaxSessions)
				},
				OnStop: func(ctx context.Context) error {
					err := srv.Shutdown(ctx)
					w.Stop()
					return err
				},
			})
		}),
	)
}

// NewClientApp assembles the echo client: it maintains Count
// connections to the server and counts round trips.
func NewClientApp(cfg *config.Config, params ClientParams) *fx.App {
	return fx.New(
		fx.NopLogger,
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			reactor.NewDispatcher,
			func() *echo.Counter { return &echo.Counter{} },
			ProvideClient,
		),
		fx.Invoke(func(d *reactor.Dispatcher, log *slog.Logger, ctr *echo.Counter, cl *reactor.Client) {
			echo.RegisterClient(d, log, ctr)
			cl.SetHooks(echo.NewClientHooks(cl, log))
			SetStatus(func() string {
				st := cl.Stats()
				return fmt.Sprintf("sessions=%d pending=%d echoes=%d sent=%d",
					st.Active, cl.Pending(), ctr.Echoes(), st.SentFrames)
			})
		}),
		fx.Invoke(func(lc fx.Lifecycle, cl *reactor.Client) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return cl.Start(params.ServerIP, params.Port, params.Count)
				},
				OnStop: func(ctx context.Context) error {
					return cl.Shutdown(ctx)
				},
			})
		}),
	)
}

// ProvideWorld builds the logic runtime from config.
func ProvideWorld(cfg *config.Config, log *slog.Logger) *game.World {
	return game.NewWorld(log,
		game.WithLogicThreads(cfg.LogicThreads),
		game.WithFixedStep(cfg.FixedStep()),
		game.WithFrameBudget(cfg.FrameBudget()),
	)
}

// ProvideServer builds the accepting reactor from config.
func ProvideServer(cfg *config.Config, d *reactor.Dispatcher, log *slog.Logger) *reactor.Server {
	return reactor.NewServer(log, d,
		reactor.WithWorkers(cfg.WorkerThreads),
		reactor.WithSendOverflow(cfg.SendOverflow),
		reactor.WithStrictUnknown(cfg.StrictUnknown),
		reactor.WithIdleTimeout(cfg.IdleTimeout()),
		reactor.WithHooks(&sessionLog{log: log}),
	)
}

// ProvideClient builds the connecting reactor from config.
func ProvideClient(cfg *config.Config, d *reactor.Dispatcher, log *slog.Logger) *reactor.Client {
	return reactor.NewClient(log, d,
		reactor.WithWorkers(cfg.WorkerThreads),
		reactor.WithSendOverflow(cfg.SendOverflow),
		reactor.WithReconnectInterval(cfg.ReconnectInterval()),
	)
}
