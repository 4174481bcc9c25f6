package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/outline/internal/record"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
// Canonical form keeps bodies byte-identical across replicas.
func marshalRecord(r record.Record) string {
	return string(r.Canonical())
}

// unmarshalRecord parses a body written by marshalRecord.
func unmarshalRecord(body string) (record.Record, error) {
	var r record.Record
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return record.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}

// nullString maps a nil pointer to SQL NULL.
func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt[T ~int](p *T) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return record.Ptr(n.String)
}

func intPtr[T ~int](n sql.NullInt64) *T {
	if !n.Valid {
		return nil
	}
	return record.Ptr(T(n.Int64))
}
