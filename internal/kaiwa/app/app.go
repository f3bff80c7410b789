// Package app wires the bridge together: database, Matrix client, session
// store, completion client, and the dispatcher, plus signal-driven shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdobrica/kaiwa/internal/kaiwa/auth"
	"github.com/bdobrica/kaiwa/internal/kaiwa/bridge"
	"github.com/bdobrica/kaiwa/internal/kaiwa/completion"
	"github.com/bdobrica/kaiwa/internal/kaiwa/matrix"
	"github.com/bdobrica/kaiwa/internal/kaiwa/profile"
	"github.com/bdobrica/kaiwa/internal/kaiwa/session"
	"github.com/bdobrica/kaiwa/internal/kaiwa/store"
)

// Config holds application configuration.
type Config struct {
	// DatabasePath is the SQLite file for Matrix sync bookkeeping. Empty
	// disables persistence: the bot then replays room history on restart.
	DatabasePath string

	Matrix     matrix.Config
	Completion completion.Config

	// AuthorizedUsers is an optional allow-list of Matrix user IDs permitted
	// to talk to the bot. Empty means everyone.
	AuthorizedUsers []string

	// MaxTurns and MaxChars bound each room's retained transcript.
	MaxTurns int
	MaxChars int

	// ShutdownGrace is how long in-flight pipelines get to finish on
	// shutdown.
	ShutdownGrace time.Duration

	// ProfilePath points at an optional YAML bot profile. Empty means no
	// profile.
	ProfilePath string
}

// App is the assembled bridge process.
type App struct {
	config   *Config
	store    *store.Store
	matrix   *matrix.Client
	sessions *session.Store
	bridge   *bridge.Bridge
}

// New wires an App from config.
func New(config *Config) (*App, error) {
	// Optional bot profile: persona and model settings folded into the
	// completion configuration before the client is built.
	if config.ProfilePath != "" {
		prof, err := profile.Load(config.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load bot profile: %w", err)
		}
		applyProfile(&config.Completion, prof)
		slog.Info("bot profile loaded", "path", config.ProfilePath,
			"model", config.Completion.Model, "has_system_prompt", config.Completion.SystemPrompt != "")
	}

	var db *store.Store
	if config.DatabasePath != "" {
		slog.Info("opening database", "path", config.DatabasePath)
		var err error
		db, err = store.New(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		slog.Warn("no database path configured; sync position will not survive restarts")
	}

	matrixCfg := config.Matrix
	if db != nil {
		matrixCfg.DB = db.DB()
	}
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver, "user", matrixCfg.UserID)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	sessions := session.NewStore(session.Config{
		MaxTurns: config.MaxTurns,
		MaxChars: config.MaxChars,
	})

	completer, err := completion.NewClient(config.Completion)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	filter := auth.NewFilter(config.AuthorizedUsers, config.Matrix.UserID)
	if len(config.AuthorizedUsers) > 0 {
		slog.Info("sender allow-list active", "senders", len(config.AuthorizedUsers))
	} else {
		slog.Info("no allow-list configured; answering every sender")
	}

	b := bridge.New(bridge.Config{
		Sessions:      sessions,
		Filter:        filter,
		Completer:     completer,
		Messenger:     matrixClient,
		ShutdownGrace: config.ShutdownGrace,
	})

	return &App{
		config:   config,
		store:    db,
		matrix:   matrixClient,
		sessions: sessions,
		bridge:   b,
	}, nil
}

// Run starts the Matrix sync and the bridge dispatcher, then blocks until
// SIGINT/SIGTERM. In-flight room pipelines get the configured grace period
// before the process exits.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- a.bridge.Run(ctx, a.matrix.Events())
	}()

	slog.Info("kaiwa is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
		cancel()
		if err := <-bridgeDone; err != nil {
			return fmt.Errorf("bridge shutdown: %w", err)
		}
	case err := <-bridgeDone:
		// The bridge never stops on its own while the context lives.
		if err != nil {
			return fmt.Errorf("bridge stopped unexpectedly: %w", err)
		}
	}

	slog.Info("shutdown complete", "active_rooms", len(a.sessions.Rooms()))
	return nil
}

// Stop releases resources. Call after Run returns.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.store != nil {
		slog.Info("closing database")
		a.store.Close()
	}
}

// applyProfile folds profile values into the completion configuration.
// Explicit profile values win over the environment-derived ones.
func applyProfile(cfg *completion.Config, p *profile.Profile) {
	if p.Persona.SystemPrompt != "" {
		cfg.SystemPrompt = p.Persona.SystemPrompt
	}
	if p.Model.Name != "" {
		cfg.Model = p.Model.Name
	}
	if p.Model.Temperature != 0 {
		cfg.Temperature = p.Model.Temperature
	}
	if p.Model.MaxTokens > 0 {
		cfg.MaxTokens = p.Model.MaxTokens
	}
}
