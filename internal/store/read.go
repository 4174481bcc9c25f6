package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/outline/internal/record"
)

// Op is the kind of a queued outbox operation.
type Op string

const (
	OpSave   Op = "save"
	OpDelete Op = "delete"
)

// OutboxEntry is one queued operation.
type OutboxEntry struct {
	ID string
	Op Op

	// Record is the record to push for OpSave.
	Record record.Record

	// Seq stamps the entry; pass it back to Ack.
	Seq       int64
	Attempts  int
	LastError string
}

// Load returns every stored record ordered by id.
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) Load(ctx context.Context) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, position, text, state, tag
		FROM records
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		var (
			r      record.Record
			parent sql.NullString
			text   sql.NullString
			state  sql.NullInt64
			tag    sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &parent, &r.Position, &text, &state, &tag); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.ParentID = stringPtr(parent)
		r.Text = stringPtr(text)
		r.State = intPtr[record.State](state)
		r.Tag = intPtr[record.Tag](tag)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Pending returns the queued outbox entries, oldest first.
func (s *Store) Pending(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, body, seq, attempts, last_error
		FROM outbox
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			op      string
			body    sql.NullString
			lastErr sql.NullString
		)
		if err := rows.Scan(&e.ID, &op, &body, &e.Seq, &e.Attempts, &lastErr); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Op = Op(op)
		e.LastError = lastErr.String
		if e.Op == OpSave {
			r, err := unmarshalRecord(body.String)
			if err != nil {
				return nil, fmt.Errorf("outbox entry %q: %w", e.ID, err)
			}
			e.Record = r
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// Shadows returns the server-acknowledged versions of ids that have one.
func (s *Store) Shadows(ctx context.Context, ids []string) (map[string]record.Record, error) {
	out := make(map[string]record.Record, len(ids))
	for _, id := range ids {
		var body string
		err := s.db.QueryRowContext(ctx, `SELECT body FROM shadow WHERE id = ?`, id).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query shadow %q: %w", id, err)
		}
		r, err := unmarshalRecord(body)
		if err != nil {
			return nil, fmt.Errorf("shadow %q: %w", id, err)
		}
		out[id] = r
	}
	return out, nil
}

// Token returns the change token stored for database, or "" if none.
func (s *Store) Token(ctx context.Context, database string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM sync_state WHERE database = ?`, database).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query token for %q: %w", database, err)
	}
	return token, nil
}
