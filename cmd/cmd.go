package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/takaragames/gamecore/config"
)

const ServiceName = "gamecore"

// Run is the CLI entry point.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Session-oriented game server runtime",
		Commands: []*cli.Command{
			serverCmd(),
			clientCmd(),
		},
	}
	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the game server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "Path to the configuration file"},
			&cli.StringFlag{Name: "bind", Value: "0.0.0.0", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Value: 11021, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"))
			if err != nil {
				return err
			}
			cfg.Watch(func(e fsnotify.Event) {
				slog.Info("config file changed, restart to apply", "file", e.Name)
			})

			app := NewServerApp(cfg, ServerParams{
				BindIP: c.String("bind"),
				Port:   c.Int("port"),
			})
			if err := app.Start(c.Context); err != nil {
				return err
			}

			waitForExit()
			slog.Info("shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:    "client",
		Aliases: []string{"c"},
		Usage:   "Run the echo client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "Path to the configuration file"},
			&cli.StringFlag{Name: "server", Value: "127.0.0.1", Usage: "Server address"},
			&cli.IntFlag{Name: "port", Value: 11021, Usage: "Server port"},
			&cli.IntFlag{Name: "count", Value: 1, Usage: "Connections to maintain"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config_file"))
			if err != nil {
				return err
			}

			app := NewClientApp(cfg, ClientParams{
				ServerIP: c.String("server"),
				Port:     c.Int("port"),
				Count:    c.Int("count"),
			})
			if err := app.Start(c.Context); err != nil {
				return err
			}

			waitForExit()
			slog.Info("shutting down...")
			return app.Stop(context.Background())
		},
	}
}

// waitForExit blocks on the operator console and the usual signals,
// whichever asks to stop first.
func waitForExit() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	go func() {
		runConsole(os.Stdin, os.Stdout, statusLine)
		close(consoleDone)
	}()

	select {
	case <-stop:
	case <-consoleDone:
	}
}

// statusFn is replaced by the running app via SetStatus.
var statusFn = func() string { return "no status source registered" }

// SetStatus installs the console's status snapshot source.
func SetStatus(fn func() string) {
	if fn != nil {
		statusFn = fn
	}
}

func statusLine() string {
	return fmt.Sprintf("%s: %s", ServiceName, statusFn())
}
