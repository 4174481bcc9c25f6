package remote

import (
	"context"

	"github.com/roach88/outline/internal/record"
)

// Database is a remote record store.
type Database interface {
	// Name identifies the database; change tokens are stored under it.
	Name() string

	// FetchAll returns every live record and a token for later changes.
	FetchAll(ctx context.Context) (Changes, error)

	// FetchChanges returns what changed after token.
	FetchChanges(ctx context.Context, token string) (Changes, error)

	// Save pushes records and reports per-record outcomes in input order.
	Save(ctx context.Context, changes []Change) ([]SaveResult, error)

	// Delete removes ids and reports per-id outcomes in input order.
	Delete(ctx context.Context, ids []string) ([]DeleteResult, error)
}

// Changes is the result of a fetch.
type Changes struct {
	Changed []record.Record
	Deleted []string
	Token   string
}

// Change is one record to save.
type Change struct {
	Record record.Record

	// Base is the server version the edit started from, nil for a record
	// the client has never seen acknowledged.
	Base *record.Record
}

// SaveStatus is the outcome of saving one record.
type SaveStatus int

const (
	StatusSaved SaveStatus = iota + 1
	StatusConflict
	StatusFailed
)

func (s SaveStatus) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusConflict:
		return "conflict"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SaveResult reports the outcome for one Change.
type SaveResult struct {
	ID     string
	Status SaveStatus

	// Record is the version the server now holds, set for StatusSaved.
	Record record.Record

	// Conflict is set for StatusConflict.
	Conflict *SaveConflict

	// Err is set for StatusFailed.
	Err error
}

// SaveConflict is a three-way conflict: the client's edit, the server's
// current version and their common ancestor (nil if none is known).
type SaveConflict struct {
	Client   record.Record
	Server   record.Record
	Ancestor *record.Record
}

// DeleteResult reports the outcome for one deleted id. Deleting an id the
// server does not hold succeeds.
type DeleteResult struct {
	ID  string
	Err error
}
