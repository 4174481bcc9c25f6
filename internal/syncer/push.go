package syncer

import (
	"context"
	"fmt"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/store"
)

// push sends the outbox. Entries stay queued until the server accepts them.
func (s *Syncer) push(ctx context.Context, report *Report) error {
	entries, err := s.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}
	var saves, deletes []store.OutboxEntry
	for _, e := range entries {
		switch e.Op {
		case store.OpSave:
			saves = append(saves, e)
		case store.OpDelete:
			deletes = append(deletes, e)
		}
	}
	if err := s.pushSaves(ctx, saves, report); err != nil {
		return err
	}
	return s.pushDeletes(ctx, deletes, report)
}

func (s *Syncer) pushSaves(ctx context.Context, entries []store.OutboxEntry, report *Report) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	shadows, err := s.journal.Shadows(ctx, ids)
	if err != nil {
		return fmt.Errorf("read shadows: %w", err)
	}

	changes := make([]remote.Change, len(entries))
	for i, e := range entries {
		changes[i] = remote.Change{Record: e.Record}
		if base, ok := shadows[e.ID]; ok {
			changes[i].Base = &base
		}
	}
	results, err := s.db.Save(ctx, changes)
	if err != nil {
		return fmt.Errorf("push saves: %w", err)
	}
	if len(results) != len(changes) {
		return fmt.Errorf("push saves: %d results for %d records", len(results), len(changes))
	}

	for i, res := range results {
		e := entries[i]
		switch res.Status {
		case remote.StatusSaved:
			if err := s.journal.SetShadows(ctx, []record.Record{res.Record}); err != nil {
				return err
			}
			if _, err := s.journal.Ack(ctx, e.ID, e.Seq); err != nil {
				return err
			}
			report.Pushed++
		case remote.StatusConflict:
			if err := s.settle(ctx, e, *res.Conflict); err != nil {
				return err
			}
			report.Conflicts++
		default:
			s.logger.Warn("record rejected", "id", e.ID, "error", res.Err)
			cause := res.Err
			if cause == nil {
				cause = fmt.Errorf("save %q: %s", e.ID, res.Status)
			}
			if err := s.journal.RecordFailure(ctx, e.ID, e.Seq, cause); err != nil {
				return err
			}
			report.Failed++
		}
	}
	return nil
}

// settle resolves a conflicting save against the server's version. The
// resolution is written to the cache and queued again if the server does
// not hold it yet. A newer local edit of the same record takes precedence.
func (s *Syncer) settle(ctx context.Context, e store.OutboxEntry, c remote.SaveConflict) error {
	server := c.Server.Normalize()
	if err := s.journal.SetShadows(ctx, []record.Record{server}); err != nil {
		return err
	}
	acked, err := s.journal.Ack(ctx, e.ID, e.Seq)
	if err != nil {
		return err
	}
	if !acked {
		s.logger.Debug("conflict superseded by a newer edit", "id", e.ID)
		return nil
	}

	merged := s.resolve(c).Normalize()
	s.logger.Info("conflict resolved", "id", e.ID, "kept_server", merged.Equal(server))
	if err := s.runner.Do(ctx, func() {
		s.records.Save([]record.Record{merged}, recordstore.OriginRemote)
	}); err != nil {
		return fmt.Errorf("apply resolution %q: %w", e.ID, err)
	}
	if !merged.Equal(server) {
		if err := s.journal.EnqueueSaves(ctx, []record.Record{merged}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) pushDeletes(ctx context.Context, entries []store.OutboxEntry, report *Report) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	results, err := s.db.Delete(ctx, ids)
	if err != nil {
		return fmt.Errorf("push deletes: %w", err)
	}
	if len(results) != len(ids) {
		return fmt.Errorf("push deletes: %d results for %d ids", len(results), len(ids))
	}

	for i, res := range results {
		e := entries[i]
		if res.Err != nil {
			s.logger.Warn("delete rejected", "id", e.ID, "error", res.Err)
			if err := s.journal.RecordFailure(ctx, e.ID, e.Seq, res.Err); err != nil {
				return err
			}
			report.Failed++
			continue
		}
		if err := s.journal.DeleteShadows(ctx, []string{e.ID}); err != nil {
			return err
		}
		if _, err := s.journal.Ack(ctx, e.ID, e.Seq); err != nil {
			return err
		}
		report.Deleted++
	}
	return nil
}
