package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/outline/internal/notify"
	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/store"
)

// ErrDisabled is returned by Sync after a terminal remote error.
var ErrDisabled = errors.New("sync disabled")

// Journal is the durable sync state: outbox, shadow copies and change
// tokens. store.Store implements it.
type Journal interface {
	EnqueueSaves(ctx context.Context, records []record.Record) error
	EnqueueDeletes(ctx context.Context, ids []string) error
	Pending(ctx context.Context) ([]store.OutboxEntry, error)
	Ack(ctx context.Context, id string, seq int64) (bool, error)
	RecordFailure(ctx context.Context, id string, seq int64, cause error) error
	Shadows(ctx context.Context, ids []string) (map[string]record.Record, error)
	SetShadows(ctx context.Context, records []record.Record) error
	DeleteShadows(ctx context.Context, ids []string) error
	Token(ctx context.Context, database string) (string, error)
	SetToken(ctx context.Context, database, token string) error
}

// Runner runs fn in the context that owns the record cache and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Inline runs tasks on the calling goroutine. It suits callers that own the
// cache themselves.
type Inline struct{}

// Do calls fn unless ctx is already done.
func (Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

// Resolver picks the record to keep for a conflicting save.
type Resolver func(remote.SaveConflict) record.Record

// Retry bounds the retries of one Sync.
type Retry struct {
	// Attempts is the total number of tries per phase, at least 1.
	Attempts int

	// BaseDelay is the wait after the first failure; it doubles each time.
	BaseDelay time.Duration

	// MaxDelay caps the doubled delay. A server's RetryAfter may exceed it.
	MaxDelay time.Duration
}

// DefaultRetry is used when no WithRetry option is given.
var DefaultRetry = Retry{Attempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}

// Report summarizes one Sync.
type Report struct {
	Pushed    int `json:"pushed"`
	Deleted   int `json:"deleted"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
	Fetched   int `json:"fetched"`
	Removed   int `json:"removed"`
}

// Syncer connects a record cache to a remote database.
type Syncer struct {
	db       remote.Database
	journal  Journal
	records  *recordstore.Store
	runner   Runner
	resolve  Resolver
	retry    Retry
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	sink     notify.Sink
	outbox   *Outbox
	inflight singleflight.Group

	mu       sync.Mutex
	disabled error
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithNotifier sets the sink for outbox write failures (default:
// notify.Discard).
func WithNotifier(sink notify.Sink) Option {
	return func(s *Syncer) { s.sink = sink }
}

// WithRunner sets how remote changes reach the cache (default: Inline).
func WithRunner(r Runner) Option {
	return func(s *Syncer) { s.runner = r }
}

// WithResolver sets the conflict policy (default: remote.MergeFields).
func WithResolver(r Resolver) Option {
	return func(s *Syncer) { s.resolve = r }
}

// WithRetry sets the retry bounds (default: DefaultRetry).
func WithRetry(r Retry) Option {
	return func(s *Syncer) { s.retry = r }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Syncer) { s.sleep = fn }
}

// New creates a syncer and starts queueing local edits of records. It must
// be called from the context that owns records. Call Close to stop.
func New(db remote.Database, journal Journal, records *recordstore.Store, opts ...Option) *Syncer {
	s := &Syncer{
		db:      db,
		journal: journal,
		records: records,
		runner:  Inline{},
		resolve: remote.MergeFields,
		retry:   DefaultRetry,
		sleep:   sleepContext,
		logger:  slog.Default(),
		sink:    notify.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Attempts = max(s.retry.Attempts, 1)
	s.outbox = NewOutbox(journal, records, s.logger, s.sink)
	return s
}

// Close stops queueing edits.
func (s *Syncer) Close() { s.outbox.Close() }

// Database returns the remote database.
func (s *Syncer) Database() remote.Database { return s.db }

// Disabled returns the terminal error that stopped sync, or nil.
func (s *Syncer) Disabled() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Enable clears a terminal error, e.g. after the user signed in again.
func (s *Syncer) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled != nil {
		s.logger.Info("sync enabled")
	}
	s.disabled = nil
}

// Sync pushes queued edits and then pulls remote changes. Concurrent calls
// share one run. It must not be called from inside the Runner.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	v, err, _ := s.inflight.Do("sync", func() (any, error) {
		report, err := s.run(ctx)
		return report, err
	})
	report, _ := v.(Report)
	return report, err
}

func (s *Syncer) run(ctx context.Context) (Report, error) {
	if err := s.Disabled(); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrDisabled, err)
	}

	var report Report
	err := s.withRetry(ctx, "push", func() error { return s.push(ctx, &report) })
	if err == nil {
		err = s.withRetry(ctx, "pull", func() error { return s.pull(ctx, &report) })
	}
	if remote.IsTerminal(err) {
		s.mu.Lock()
		s.disabled = err
		s.mu.Unlock()
		s.logger.Error("sync disabled", "database", s.db.Name(), "error", err)
	}
	if err != nil {
		return report, err
	}
	s.logger.Debug("sync complete",
		"database", s.db.Name(),
		"pushed", report.Pushed,
		"deleted", report.Deleted,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
		"fetched", report.Fetched,
		"removed", report.Removed,
	)
	return report, nil
}

// withRetry runs op until it succeeds, fails with a non-retryable error or
// runs out of attempts.
func (s *Syncer) withRetry(ctx context.Context, phase string, op func() error) error {
	delay := s.retry.BaseDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !remote.IsRetryable(err) || attempt >= s.retry.Attempts {
			return err
		}
		wait := delay
		if s.retry.MaxDelay > 0 {
			wait = min(wait, s.retry.MaxDelay)
		}
		wait = max(wait, remote.RetryAfter(err))
		s.logger.Warn("sync retrying", "phase", phase, "attempt", attempt, "wait", wait, "error", err)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
