package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/schuellerf/bufferbane/protocol"
	"github.com/schuellerf/bufferbane/server"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "bufferbane-server"
	app.Usage = "authenticated UDP measurement server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "0.0.0.0:7890",
			Usage: "UDP listen address, host:port",
		},
		cli.StringFlag{
			Name:   "secret",
			Usage:  "pre-shared 64-hex-character secret",
			EnvVar: "BUFFERBANE_SECRET",
		},
		cli.IntFlag{
			Name:  "max-clients",
			Value: 0,
			Usage: "advisory cap on concurrent clients (not enforced)",
		},
		cli.Uint64Flag{
			Name:  "session-timeout",
			Value: 300,
			Usage: "seconds of inactivity before a session is reaped",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "load configuration from a JSON file, overriding flags",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "trace, debug, info, warn, error",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	var cfg *server.Config
	if path := c.String("c"); path != "" {
		loaded, err := server.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		host, port, err := splitListenFlag(c.String("listen"))
		if err != nil {
			return err
		}
		cfg = &server.Config{
			BindAddress:          host,
			BindPort:             port,
			MaxConcurrentClients: c.Int("max-clients"),
			SharedSecret:         c.String("secret"),
			SessionTimeoutSec:    c.Uint64("session-timeout"),
		}
		if cfg.SessionTimeoutSec == 0 {
			cfg.SessionTimeoutSec = 300
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.String("log-level"), err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	key, err := protocol.ParseSharedSecret(cfg.SharedSecret)
	if err != nil {
		return err
	}

	sessions := server.NewSessionManager(cfg.SessionTimeout())
	dispatcher, err := server.NewDispatcher(cfg.BindAddr(), key, sessions, log)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	log.Info().Str("listen", cfg.BindAddr()).Msg("bufferbane-server starting")

	stop := make(chan struct{})
	defer close(stop)
	go sessions.RunReaper(protocol.ReaperInterval, stop, func(removed int) {
		log.Debug().Int("removed", removed).Msg("reaped idle sessions")
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		dispatcher.Close()
	}()

	return dispatcher.Run()
}

func splitListenFlag(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parsing listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("parsing port in %q: %w", addr, err)
	}
	return host, uint16(port), nil
}
