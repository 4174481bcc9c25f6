package syncer

import (
	"context"
	"log/slog"

	"github.com/roach88/outline/internal/notify"
	"github.com/roach88/outline/internal/recordstore"
)

// Outbox queues the controller's and the user's edits of a record cache in
// a journal. Edits by other origins are already on the remote or came from
// the local store.
type Outbox struct {
	journal Journal
	logger  *slog.Logger
	sink    notify.Sink
	cancel  func()
}

// NewOutbox starts observing records. It must be called from the context
// that owns records.
func NewOutbox(journal Journal, records *recordstore.Store, logger *slog.Logger, sink notify.Sink) *Outbox {
	o := &Outbox{journal: journal, logger: logger, sink: sink}
	o.cancel = records.Observe(o)
	return o
}

// Close stops queueing edits.
func (o *Outbox) Close() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// RecordsChanged queues local edits.
func (o *Outbox) RecordsChanged(edit recordstore.Edit) {
	if edit.Author != recordstore.OriginController && edit.Author != recordstore.OriginUser {
		return
	}
	ctx := context.Background()
	var err error
	switch edit.Kind {
	case recordstore.EditModified:
		err = o.journal.EnqueueSaves(ctx, edit.Records)
	case recordstore.EditDeleted:
		err = o.journal.EnqueueDeletes(ctx, edit.IDs)
	}
	if err != nil {
		o.logger.Error("outbox write failed", "error", err, "kind", edit.Kind)
		o.sink.Notify("Could not queue your changes for sync", err)
	}
}
