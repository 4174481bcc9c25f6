package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outline/internal/cloud"
	"github.com/roach88/outline/internal/config"
	"github.com/roach88/outline/internal/engine"
	"github.com/roach88/outline/internal/notify"
	"github.com/roach88/outline/internal/store"
	"github.com/roach88/outline/internal/syncer"
)

// session is an engine running over the configured databases for the
// duration of one command.
type session struct {
	cfg    config.Config
	engine *engine.Engine
	store  *store.Store
	remote *cloud.Database
	logger *slog.Logger
	stop   func()

	interval time.Duration // background sync period, zero when not periodic
}

// defaultWatchInterval applies when neither the config nor --interval
// sets a sync interval.
const defaultWatchInterval = 30 * time.Second

type sessionOptions struct {
	needRemote bool          // fail unless a remote is configured
	periodic   bool          // sync in the background while the session runs
	interval   time.Duration // overrides the configured sync interval
}

// loadConfig reads --config, if given, and applies the --db and --remote
// overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, CodeConfig, "failed to load config", err)
		}
		cfg = loaded
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Remote != "" {
		cfg.Remote = o.Remote
	}
	return cfg, nil
}

// newLogger returns a text logger writing to w at the configured level,
// or at debug level with --verbose.
func (o *RootOptions) newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSession opens the local database, the remote if one is configured,
// starts the engine and loads the outline.
func openSession(cmd *cobra.Command, opts *RootOptions, so sessionOptions) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	if so.needRemote && cfg.Remote == "" {
		return nil, NewExitError(ExitCommandError, CodeConfig, "no remote database configured (use --remote or set remote in the config file)")
	}

	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, CodeDatabase, "failed to create database directory", err)
		}
	}
	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, CodeDatabase, "failed to open database", err)
	}

	s := &session{cfg: cfg, store: st, logger: logger}
	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithNotifier(notify.NewWriter(cmd.ErrOrStderr())),
		engine.WithLocalStore(st),
		engine.WithJournal(st),
	}
	if cfg.Remote != "" {
		logger.Debug("opening remote", "path", cfg.Remote)
		db, err := cloud.Open(cfg.Remote)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, CodeDatabase, "failed to open remote database", err)
		}
		s.remote = db
		engineOpts = append(engineOpts,
			engine.WithRemote(db, st),
			engine.WithSyncOptions(syncer.WithRetry(syncer.Retry{
				Attempts:  cfg.Retry.Attempts,
				BaseDelay: cfg.Retry.BaseDelay.Std(),
				MaxDelay:  cfg.Retry.MaxDelay.Std(),
			})),
		)
		if so.periodic {
			interval := cfg.SyncInterval.Std()
			if so.interval > 0 {
				interval = so.interval
			}
			if interval <= 0 {
				interval = defaultWatchInterval
			}
			s.interval = interval
			engineOpts = append(engineOpts, engine.WithSyncInterval(interval))
		}
	}
	s.engine = engine.New(engineOpts...)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.engine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("engine stopped", "error", err)
		}
	}()
	s.stop = func() {
		s.engine.Stop()
		cancel()
		<-done
	}

	n, err := s.engine.Load(ctx)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, CodeDatabase, "failed to load outline", err)
	}
	logger.Debug("outline loaded", "records", n)
	return s, nil
}

// Do runs fn on the engine loop.
func (s *session) Do(ctx context.Context, fn func()) error {
	if err := s.engine.Do(ctx, fn); err != nil {
		return WrapExitError(ExitFailure, CodeDatabase, "engine unavailable", err)
	}
	return nil
}

// Close stops the engine and closes both databases.
func (s *session) Close() {
	s.stop()
	if s.remote != nil {
		if err := s.remote.Close(); err != nil {
			s.logger.Error("error closing remote database", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// requireArgs is cobra.ExactArgs with an error Execute reports as bad input.
func requireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, CodeInput, fmt.Sprintf("usage: %s", cmd.UseLine()), err)
		}
		return nil
	}
}
