package syncer

import (
	"context"
	"fmt"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/remote"
)

// pull fetches the server's changes and applies them as remote edits.
// Records with queued local edits are left alone; their push settles them.
func (s *Syncer) pull(ctx context.Context, report *Report) error {
	name := s.db.Name()
	token, err := s.journal.Token(ctx, name)
	if err != nil {
		return err
	}
	var changes remote.Changes
	if token == "" {
		changes, err = s.db.FetchAll(ctx)
	} else {
		changes, err = s.db.FetchChanges(ctx, token)
	}
	if err != nil {
		return fmt.Errorf("fetch changes: %w", err)
	}
	// A cancelled fetch is never applied, not even in part.
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}
	queued := make(map[string]bool, len(entries))
	for _, e := range entries {
		queued[e.ID] = true
	}
	var changed []record.Record
	for _, r := range changes.Changed {
		if !queued[r.ID] {
			changed = append(changed, r.Normalize())
		}
	}
	var deleted []string
	for _, id := range changes.Deleted {
		if !queued[id] {
			deleted = append(deleted, id)
		}
	}

	if len(changed) > 0 || len(deleted) > 0 {
		// Deletions go first so no doomed item is renumbered by the saves.
		if err := s.runner.Do(ctx, func() {
			s.records.Delete(deleted, recordstore.OriginRemote)
			s.records.Save(changed, recordstore.OriginRemote)
		}); err != nil {
			return fmt.Errorf("apply changes: %w", err)
		}
	}
	if err := s.journal.SetShadows(ctx, changed); err != nil {
		return err
	}
	if err := s.journal.DeleteShadows(ctx, deleted); err != nil {
		return err
	}
	if err := s.journal.SetToken(ctx, name, changes.Token); err != nil {
		return err
	}
	report.Fetched += len(changed)
	report.Removed += len(deleted)
	return nil
}
