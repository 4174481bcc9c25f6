// Package cloud serves a remote.Database from a SQLite file, so that
// several local replicas on one machine can sync through it.
package cloud

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Database is a SQLite-backed remote.Database.
type Database struct {
	db   *sql.DB
	name string
}

var _ remote.Database = (*Database)(nil)

// Open opens or creates the database file at path. The file name doubles as
// the database name under which replicas store their change tokens.
func Open(path string) (*Database, error) {
	db, err := store.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Database{db: db, name: "file:" + path}, nil
}

// Close closes the file.
func (d *Database) Close() error { return d.db.Close() }

// Name implements remote.Database.
func (d *Database) Name() string { return d.name }

// FetchAll implements remote.Database.
func (d *Database) FetchAll(ctx context.Context) (remote.Changes, error) {
	return d.FetchChanges(ctx, "")
}

// FetchChanges implements remote.Database. An empty token fetches every
// live record.
func (d *Database) FetchChanges(ctx context.Context, token string) (remote.Changes, error) {
	var since int64
	if token != "" {
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return remote.Changes{}, &remote.Error{Code: remote.ErrCodeInvalid, Message: fmt.Sprintf("bad change token %q", token), Err: err}
		}
		since = n
	}

	var out remote.Changes
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT body FROM server_records
			WHERE seq > ?
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`, since)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var body string
			if err := rows.Scan(&body); err != nil {
				return fmt.Errorf("scan record: %w", err)
			}
			r, err := decode(body)
			if err != nil {
				return err
			}
			out.Changed = append(out.Changed, r)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate records: %w", err)
		}

		if token != "" {
			if out.Deleted, err = tombstones(ctx, tx, since); err != nil {
				return err
			}
		}

		current, err := currentSeq(ctx, tx)
		if err != nil {
			return err
		}
		out.Token = strconv.FormatInt(current, 10)
		return nil
	})
	if err != nil {
		return remote.Changes{}, err
	}
	return out, nil
}

// Save implements remote.Database. Conflicts are detected with
// remote.Detect against the stored version.
func (d *Database) Save(ctx context.Context, changes []remote.Change) ([]remote.SaveResult, error) {
	results := make([]remote.SaveResult, len(changes))
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for i, ch := range changes {
			client := ch.Record.Normalize()
			if err := client.Validate(); err != nil {
				results[i] = remote.SaveResult{
					ID:     client.ID,
					Status: remote.StatusFailed,
					Err:    &remote.Error{Code: remote.ErrCodeInvalid, Message: "record rejected", Err: err},
				}
				continue
			}

			current, exists, err := load(ctx, tx, client.ID)
			if err != nil {
				return err
			}
			if exists {
				if conflict := remote.Detect(client, current, ch.Base); conflict != nil {
					results[i] = remote.SaveResult{ID: client.ID, Status: remote.StatusConflict, Conflict: conflict}
					continue
				}
			}

			seq, err := nextSeq(ctx, tx)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO server_records (id, body, seq) VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET body = excluded.body, seq = excluded.seq
			`, client.ID, string(client.Canonical()), seq); err != nil {
				return fmt.Errorf("save %q: %w", client.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM server_tombstones WHERE id = ?`, client.ID); err != nil {
				return fmt.Errorf("save %q: %w", client.ID, err)
			}
			results[i] = remote.SaveResult{ID: client.ID, Status: remote.StatusSaved, Record: client}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Delete implements remote.Database.
func (d *Database) Delete(ctx context.Context, ids []string) ([]remote.DeleteResult, error) {
	results := make([]remote.DeleteResult, len(ids))
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			results[i] = remote.DeleteResult{ID: id}
			res, err := tx.ExecContext(ctx, `DELETE FROM server_records WHERE id = ?`, id)
			if err != nil {
				return fmt.Errorf("delete %q: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			seq, err := nextSeq(ctx, tx)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO server_tombstones (id, seq) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET seq = excluded.seq
			`, id, seq); err != nil {
				return fmt.Errorf("delete %q: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// inTx runs fn in a transaction. Storage failures other than cancellation
// surface as retryable network errors, the way a hosted database would
// report an outage.
func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func classify(err error) error {
	var re *remote.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &re) {
		return err
	}
	return remote.NewNetworkError(err)
}

func load(ctx context.Context, tx *sql.Tx, id string) (record.Record, bool, error) {
	var body string
	err := tx.QueryRowContext(ctx, `SELECT body FROM server_records WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, fmt.Errorf("load %q: %w", id, err)
	}
	r, err := decode(body)
	if err != nil {
		return record.Record{}, false, err
	}
	return r, true, nil
}

func tombstones(ctx context.Context, tx *sql.Tx, since int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM server_tombstones
		WHERE seq > ?
		ORDER BY id COLLATE BINARY ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query tombstones: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tombstones: %w", err)
	}
	return ids, nil
}

func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO server_clock (name, value) VALUES ('seq', 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

func currentSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `SELECT value FROM server_clock WHERE name = 'seq'`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current seq: %w", err)
	}
	return seq, nil
}

func decode(body string) (record.Record, error) {
	var r record.Record
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return record.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
