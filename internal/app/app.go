// Package app assembles the server process: configuration, logging,
// the simulation hub, and the HTTP front end.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bstrzelecki/asteroids-server/internal/config"
	"github.com/bstrzelecki/asteroids-server/internal/server"
)

// App is one running server instance.
type App struct {
	cfg config.Config
	log zerolog.Logger
	hub *server.Hub
	srv *http.Server
}

// New wires an app from loaded configuration.
func New(cfg config.Config) (*App, error) {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	tuning := cfg.Tuning
	hub := server.NewHub(log.With().Str("component", "hub").Logger(), server.Options{
		Seed:                  cfg.Server.Seed,
		Tuning:                &tuning,
		KeyframeIntervalTicks: cfg.Replication.KeyframeIntervalTicks,
		JournalFrames:         cfg.Replication.JournalFrames,
		JournalMaxAge:         cfg.Replication.JournalMaxAge,
		InterestRadius:        cfg.Replication.InterestRadius,
		InputQueueCap:         cfg.Replication.InputQueueCap,
		ViolationLimit:        cfg.Replication.ViolationLimit,
		DisconnectAfter:       cfg.Replication.DisconnectAfter,
		MaxCatchupTicks:       cfg.Replication.MaxCatchupTicks,
	})
	handler := server.NewHandler(hub, log.With().Str("component", "http").Logger())

	return &App{
		cfg: cfg,
		log: log,
		hub: hub,
		srv: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run starts the tick loop and HTTP listener and blocks until ctx is
// cancelled, then drains: sessions close, the final scores are logged.
func (a *App) Run(ctx context.Context) error {
	stop := make(chan struct{})
	go a.hub.RunSimulation(stop)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Server.Addr).Msg("listening")
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		close(stop)
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	close(stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown")
	}

	scores := a.hub.Terminate()
	for player, score := range scores {
		a.log.Info().Str("player", player).Int("score", score).Msg("final score")
	}
	return nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("app: parse log level %q: %w", cfg.Level, err)
	}
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}
