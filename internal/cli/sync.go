package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/syncer"
)

// SyncView is the result of sync.
type SyncView struct {
	Remote string `json:"remote"`
	syncer.Report
}

// Text implements texter.
func (v SyncView) Text() string {
	r := v.Report
	return fmt.Sprintf("synced with %s: pushed %d, deleted %d, %d conflicts, %d failed; fetched %d, removed %d",
		v.Remote, r.Pushed, r.Deleted, r.Conflicts, r.Failed, r.Fetched, r.Removed)
}

// syncError maps a failed sync onto an exit error.
func syncError(err error) error {
	switch {
	case errors.Is(err, syncer.ErrDisabled), remote.IsTerminal(err):
		return WrapExitError(ExitFailure, CodeSync, "sync stopped; fix the remote account and sync again", err)
	case remote.IsRetryable(err):
		return WrapExitError(ExitFailure, CodeSync, "remote unavailable; local changes are kept and will be pushed later", err)
	}
	return WrapExitError(ExitFailure, CodeSync, "sync failed", err)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and pull remote ones",
		Long: `Push queued local changes to the remote database, then apply the changes
other replicas made since the last sync.

Exit codes:
  0 - Sync completed (some records may still have been rejected; see "failed")
  1 - Sync failed; queued changes are kept
  2 - Command error (no remote configured, database not found, etc.)

Examples:
  outline sync --remote ~/Dropbox/outline-server.db
  outline sync --config ~/.outline/config.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	s, err := openSession(cmd, opts, sessionOptions{needRemote: true})
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.Sync(cmd.Context())
	if err != nil {
		return syncError(err)
	}
	return opts.output(cmd).Success(SyncView{Remote: s.remote.Name(), Report: report})
}

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing until interrupted",
		Long: `Sync once, then keep syncing on an interval until Ctrl-C.

The interval comes from --interval, then sync_interval in the config file,
then defaults to 30s.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between syncs")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.SetContext(ctx)
	s, err := openSession(cmd, opts.RootOptions, sessionOptions{needRemote: true, periodic: true, interval: opts.Interval})
	if err != nil {
		return err
	}
	defer s.Close()

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.engine.Sync(ctx); err != nil && ctx.Err() == nil {
		if errors.Is(err, syncer.ErrDisabled) || remote.IsTerminal(err) {
			return syncError(err)
		}
		s.logger.Warn("initial sync failed", "error", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Syncing with %s every %s. Press Ctrl-C to stop.\n", s.remote.Name(), s.interval)
	<-ctx.Done()

	return nil
}
