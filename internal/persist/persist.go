// Package persist keeps the record cache and the local durable store in
// step.
//
// At startup Load fills the cache from the durable store under
// recordstore.OriginFileCache. Afterwards every cache edit from another
// origin is written back. A failed write is logged, reported to the notify
// sink and retried with the next write; the in-memory model is never rolled
// back.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/outline/internal/notify"
	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
)

// LocalStore is the durable record store. Writes must be idempotent.
type LocalStore interface {
	Load(ctx context.Context) ([]record.Record, error)
	SaveRecords(ctx context.Context, records []record.Record) error
	DeleteRecords(ctx context.Context, ids []string) error
}

// Adapter writes cache edits to a LocalStore.
type Adapter struct {
	local   LocalStore
	records *recordstore.Store
	logger  *slog.Logger
	sink    notify.Sink
	cancel  func()

	// Writes that have not reached the store yet.
	dirty   map[string]record.Record
	deleted map[string]bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithNotifier sets the sink for failed writes (default: notify.Discard).
func WithNotifier(s notify.Sink) Option {
	return func(a *Adapter) { a.sink = s }
}

// New creates an adapter observing records. Call Close to stop.
func New(local LocalStore, records *recordstore.Store, opts ...Option) *Adapter {
	a := &Adapter{
		local:   local,
		records: records,
		logger:  slog.Default(),
		sink:    notify.Discard,
		dirty:   make(map[string]record.Record),
		deleted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cancel = records.Observe(a)
	return a
}

// Close stops observing the cache.
func (a *Adapter) Close() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Load reads the durable store into the cache and returns how many records
// it held. A failure here means the replica cannot start.
func (a *Adapter) Load(ctx context.Context) (int, error) {
	records, err := a.local.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load local records: %w", err)
	}
	a.records.Save(records, recordstore.OriginFileCache)
	a.logger.Debug("local records loaded", "count", len(records))
	return len(records), nil
}

// RecordsChanged queues the edit and writes everything pending.
func (a *Adapter) RecordsChanged(edit recordstore.Edit) {
	if edit.Author == recordstore.OriginFileCache {
		return
	}
	switch edit.Kind {
	case recordstore.EditModified:
		// Observers that ran earlier may have rewritten these records; the
		// cache holds the value to persist.
		for _, r := range edit.Records {
			current, ok := a.records.Record(r.ID)
			if !ok {
				continue
			}
			delete(a.deleted, r.ID)
			a.dirty[r.ID] = current
		}
	case recordstore.EditDeleted:
		for _, id := range edit.IDs {
			delete(a.dirty, id)
			a.deleted[id] = true
		}
	}
	// Observers have no context of their own; writes are short and local.
	_ = a.Flush(context.Background())
}

// Pending returns the number of writes still waiting for the store.
func (a *Adapter) Pending() int { return len(a.dirty) + len(a.deleted) }

// Flush writes pending saves and deletions. Whatever fails stays pending.
func (a *Adapter) Flush(ctx context.Context) error {
	var errs []error
	if len(a.dirty) > 0 {
		ids := slices.Sorted(maps.Keys(a.dirty))
		batch := make([]record.Record, len(ids))
		for i, id := range ids {
			batch[i] = a.dirty[id]
		}
		if err := a.local.SaveRecords(ctx, batch); err != nil {
			errs = append(errs, err)
			a.fail("Could not save your outline", err, len(batch))
		} else {
			clear(a.dirty)
		}
	}
	if len(a.deleted) > 0 {
		ids := slices.Sorted(maps.Keys(a.deleted))
		if err := a.local.DeleteRecords(ctx, ids); err != nil {
			errs = append(errs, err)
			a.fail("Could not delete items from your outline", err, len(ids))
		} else {
			clear(a.deleted)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush local records: %w", errs[0])
	}
	return nil
}

func (a *Adapter) fail(title string, err error, count int) {
	a.logger.Error("local write failed", "error", err, "count", count)
	a.sink.Notify(title, err)
}
