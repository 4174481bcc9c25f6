package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/outline/internal/controller"
	"github.com/roach88/outline/internal/notify"
	"github.com/roach88/outline/internal/persist"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/syncer"
	"github.com/roach88/outline/internal/treestore"
)

var (
	// ErrStopped is returned by Do once the engine no longer runs tasks.
	ErrStopped = errors.New("engine stopped")

	// ErrNoRemote is returned by Sync when no remote database is configured.
	ErrNoRemote = errors.New("no remote database configured")

	// ErrNoLocalStore is returned by Load when no local store is configured.
	ErrNoLocalStore = errors.New("no local store configured")
)

// Engine owns one replica: the tree store, the record cache, the controller
// between them, and optionally local persistence and remote sync.
//
// Trees and records are only touched by tasks running in the Run loop.
// Remote I/O happens on the caller's goroutine and re-enters through Do.
//
// Thread-safety model:
//   - Do(), Sync(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Trees(), Records(): only from inside a task
type Engine struct {
	trees      *treestore.Store
	records    *recordstore.Store
	controller *controller.Controller
	persist    *persist.Adapter
	syncer     *syncer.Syncer
	outbox     *syncer.Outbox // queues edits while no remote is configured
	queue      *taskQueue
	stopped    chan struct{}

	logger       *slog.Logger
	sink         notify.Sink
	syncInterval time.Duration
	local        persist.LocalStore
	db           remote.Database
	journal      syncer.Journal
	syncOpts     []syncer.Option
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine and every component it builds
// (default: slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier sets the sink for storage errors (default: notify.Discard).
func WithNotifier(s notify.Sink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithLocalStore persists the record cache in local.
func WithLocalStore(local persist.LocalStore) EngineOption {
	return func(e *Engine) { e.local = local }
}

// WithRemote syncs with db, keeping the outbox, shadow copies and change
// tokens in journal.
func WithRemote(db remote.Database, journal syncer.Journal) EngineOption {
	return func(e *Engine) {
		e.db = db
		e.journal = journal
	}
}

// WithJournal queues local edits in journal without a remote, so that a
// later run with WithRemote pushes them.
func WithJournal(journal syncer.Journal) EngineOption {
	return func(e *Engine) { e.journal = journal }
}

// WithSyncInterval makes Run sync every d. Zero disables periodic sync.
func WithSyncInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.syncInterval = d }
}

// WithSyncOptions passes options such as a retry policy or a resolver to
// the syncer.
func WithSyncOptions(opts ...syncer.Option) EngineOption {
	return func(e *Engine) { e.syncOpts = append(e.syncOpts, opts...) }
}

// New builds a replica. No task runs until Run is called.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		queue:   newTaskQueue(),
		stopped: make(chan struct{}),
		logger:  slog.Default(),
		sink:    notify.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.trees = treestore.New(treestore.WithLogger(e.logger))
	e.records = recordstore.New(recordstore.WithLogger(e.logger))
	e.controller = controller.New(e.trees, e.records, controller.WithLogger(e.logger))
	if e.local != nil {
		e.persist = persist.New(e.local, e.records,
			persist.WithLogger(e.logger),
			persist.WithNotifier(e.sink),
		)
	}
	if e.db != nil && e.journal != nil {
		base := []syncer.Option{
			syncer.WithLogger(e.logger),
			syncer.WithNotifier(e.sink),
			syncer.WithRunner(e),
		}
		e.syncer = syncer.New(e.db, e.journal, e.records, append(base, e.syncOpts...)...)
	} else if e.journal != nil {
		e.outbox = syncer.NewOutbox(e.journal, e.records, e.logger, e.sink)
	}
	return e
}

// Trees returns the tree store. Only use it inside a task.
func (e *Engine) Trees() *treestore.Store { return e.trees }

// Records returns the record cache. Only use it inside a task.
func (e *Engine) Records() *recordstore.Store { return e.records }

// Do runs fn in the Run loop and waits until it returned. It must not be
// called from inside a task.
func (e *Engine) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := task{fn: fn, done: make(chan struct{})}
	if !e.queue.Enqueue(t) {
		return ErrStopped
	}
	select {
	case <-t.done:
		return nil
	case <-e.stopped:
		// The loop may have run the task just before it stopped.
		select {
		case <-t.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fills the replica from the local store and returns the number of
// records read.
func (e *Engine) Load(ctx context.Context) (int, error) {
	if e.persist == nil {
		return 0, ErrNoLocalStore
	}
	var (
		n       int
		loadErr error
	)
	if err := e.Do(ctx, func() { n, loadErr = e.persist.Load(ctx) }); err != nil {
		return 0, err
	}
	return n, loadErr
}

// Sync pushes local edits to the remote database and applies its changes.
// It must not be called from inside a task.
func (e *Engine) Sync(ctx context.Context) (syncer.Report, error) {
	if e.syncer == nil {
		return syncer.Report{}, ErrNoRemote
	}
	return e.syncer.Sync(ctx)
}

// SyncDisabled returns the terminal remote error that stopped sync, or nil.
func (e *Engine) SyncDisabled() error {
	if e.syncer == nil {
		return nil
	}
	return e.syncer.Disabled()
}

// EnableSync resumes sync after a terminal remote error.
func (e *Engine) EnableSync() {
	if e.syncer != nil {
		e.syncer.Enable()
	}
}

// Run starts the single-writer task loop, plus periodic sync when an
// interval and a remote are configured. It blocks until ctx is cancelled
// or Stop is called, and must be called at most once.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Debug("engine starting")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		defer close(e.stopped)
		return e.loop(gctx)
	})
	if e.syncer != nil && e.syncInterval > 0 {
		g.Go(func() error {
			e.syncEvery(gctx, e.syncInterval)
			return nil
		})
	}
	return g.Wait()
}

// Stop closes the task queue. Queued tasks still run, then Run returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		if t, ok := e.queue.TryDequeue(); ok {
			e.runTask(t)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			// The signal channel is closed with the queue; stop once drained.
			if e.closedAndEmpty() {
				e.logger.Debug("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) closedAndEmpty() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed && len(e.queue.tasks) == 0
}

// runTask runs one task. A panicking task is logged and the loop goes on.
func (e *Engine) runTask(t task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	t.fn()
}

func (e *Engine) syncEvery(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sync(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("periodic sync failed", "error", err)
			}
		}
	}
}
