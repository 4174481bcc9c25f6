package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/outline/internal/record"
)

// SaveRecords upserts records by id. Rows whose fingerprint is unchanged are
// left alone, so re-saving identical content is harmless.
func (s *Store) SaveRecords(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return fmt.Errorf("save records: %w", err)
		}
		for _, r := range records {
			r = r.Normalize()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO records (id, parent_id, position, text, state, tag, fingerprint, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					parent_id = excluded.parent_id,
					position = excluded.position,
					text = excluded.text,
					state = excluded.state,
					tag = excluded.tag,
					fingerprint = excluded.fingerprint,
					seq = excluded.seq
				WHERE records.fingerprint <> excluded.fingerprint
			`,
				r.ID,
				nullString(r.ParentID),
				r.Position,
				nullString(r.Text),
				nullInt(r.State),
				nullInt(r.Tag),
				r.Fingerprint(),
				seq,
			)
			if err != nil {
				return fmt.Errorf("save record %q: %w", r.ID, err)
			}
		}
		return nil
	})
}

// DeleteRecords removes records by id. Unknown ids are ignored.
func (s *Store) DeleteRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete record %q: %w", id, err)
			}
		}
		return nil
	})
}

// EnqueueSaves queues records for pushing. An entry already queued for the
// same id is replaced and its attempt count reset.
func (s *Store) EnqueueSaves(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			if err := enqueue(ctx, tx, r.ID, OpSave, sql.NullString{String: marshalRecord(r.Normalize()), Valid: true}); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnqueueDeletes queues deletions for pushing, replacing any queued save of
// the same id.
func (s *Store) EnqueueDeletes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := enqueue(ctx, tx, id, OpDelete, sql.NullString{}); err != nil {
				return err
			}
		}
		return nil
	})
}

func enqueue(ctx context.Context, tx *sql.Tx, id string, op Op, body sql.NullString) error {
	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("enqueue %s %q: %w", op, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, op, body, seq, attempts, last_error)
		VALUES (?, ?, ?, ?, 0, NULL)
		ON CONFLICT(id) DO UPDATE SET
			op = excluded.op,
			body = excluded.body,
			seq = excluded.seq,
			attempts = 0,
			last_error = NULL
	`, id, string(op), body, seq)
	if err != nil {
		return fmt.Errorf("enqueue %s %q: %w", op, id, err)
	}
	return nil
}

// Ack removes the outbox entry for id if it is still the one stamped seq.
// It reports whether an entry was removed.
func (s *Store) Ack(ctx context.Context, id string, seq int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ? AND seq = ?`, id, seq)
	if err != nil {
		return false, fmt.Errorf("ack %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ack %q: %w", id, err)
	}
	return n > 0, nil
}

// RecordFailure bumps the attempt count of the entry for id stamped seq and
// remembers cause.
func (s *Store) RecordFailure(ctx context.Context, id string, seq int64, cause error) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = ?
		WHERE id = ? AND seq = ?
	`, cause.Error(), id, seq)
	if err != nil {
		return fmt.Errorf("record failure %q: %w", id, err)
	}
	return nil
}

// SetShadows stores records as the server-acknowledged versions of their ids.
func (s *Store) SetShadows(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO shadow (id, body) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET body = excluded.body
			`, r.ID, marshalRecord(r.Normalize()))
			if err != nil {
				return fmt.Errorf("set shadow %q: %w", r.ID, err)
			}
		}
		return nil
	})
}

// DeleteShadows forgets the server versions of ids.
func (s *Store) DeleteShadows(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM shadow WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete shadow %q: %w", id, err)
			}
		}
		return nil
	})
}

// SetToken stores the change token for a remote database.
func (s *Store) SetToken(ctx context.Context, database, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (database, token) VALUES (?, ?)
		ON CONFLICT(database) DO UPDATE SET token = excluded.token
	`, database, token)
	if err != nil {
		return fmt.Errorf("set token for %q: %w", database, err)
	}
	return nil
}
