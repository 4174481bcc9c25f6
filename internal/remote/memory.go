package remote

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/outline/internal/record"
)

// Memory is an in-process Database. Change tokens are clock values
// rendered in decimal.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	name  string
	clock Clock

	mu         sync.Mutex
	rows       map[string]row
	tombstones map[string]int64
	failures   []error
}

type row struct {
	rec record.Record
	seq int64
}

// MemoryOption configures a Memory database.
type MemoryOption func(*Memory)

// WithName sets the database name (default "memory").
func WithName(name string) MemoryOption {
	return func(m *Memory) { m.name = name }
}

// WithClock sets the clock stamping changes.
func WithClock(c Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// NewMemory creates an empty database.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		name:       "memory",
		clock:      &logicalClock{},
		rows:       make(map[string]row),
		tombstones: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements Database.
func (m *Memory) Name() string { return m.name }

// FailWith queues errors; each following call fails with the next one
// until the queue is drained.
func (m *Memory) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Put writes records as another client would, without conflict checks.
func (m *Memory) Put(records ...record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.put(r.Normalize())
	}
}

// Remove deletes ids as another client would.
func (m *Memory) Remove(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.remove(id)
	}
}

// Records returns every live record ordered by id.
func (m *Memory) Records() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live()
}

// FetchAll implements Database.
func (m *Memory) FetchAll(ctx context.Context) (Changes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return Changes{}, fmt.Errorf("fetch all: %w", err)
	}
	return Changes{Changed: m.live(), Token: m.token()}, nil
}

// FetchChanges implements Database. An empty token fetches everything.
func (m *Memory) FetchChanges(ctx context.Context, token string) (Changes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return Changes{}, fmt.Errorf("fetch changes: %w", err)
	}
	if token == "" {
		return Changes{Changed: m.live(), Token: m.token()}, nil
	}
	since, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return Changes{}, &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("bad change token %q", token), Err: err}
	}

	var changed []row
	for _, r := range m.rows {
		if r.seq > since {
			changed = append(changed, r)
		}
	}
	slices.SortFunc(changed, func(a, b row) int {
		return cmp.Or(cmp.Compare(a.seq, b.seq), cmp.Compare(a.rec.ID, b.rec.ID))
	})

	var deleted []string
	for id, seq := range m.tombstones {
		if seq > since {
			deleted = append(deleted, id)
		}
	}
	slices.Sort(deleted)

	out := Changes{Deleted: deleted, Token: m.token()}
	for _, r := range changed {
		out.Changed = append(out.Changed, r.rec)
	}
	return out, nil
}

// Save implements Database. A record deleted on the server is recreated.
func (m *Memory) Save(ctx context.Context, changes []Change) ([]SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	results := make([]SaveResult, len(changes))
	for i, ch := range changes {
		client := ch.Record.Normalize()
		if err := client.Validate(); err != nil {
			results[i] = SaveResult{ID: client.ID, Status: StatusFailed, Err: &Error{Code: ErrCodeInvalid, Message: "record rejected", Err: err}}
			continue
		}
		current, exists := m.rows[client.ID]
		if exists {
			if conflict := Detect(client, current.rec, ch.Base); conflict != nil {
				results[i] = SaveResult{ID: client.ID, Status: StatusConflict, Conflict: conflict}
				continue
			}
		}
		m.put(client)
		results[i] = SaveResult{ID: client.ID, Status: StatusSaved, Record: client}
	}
	return results, nil
}

// Delete implements Database.
func (m *Memory) Delete(ctx context.Context, ids []string) ([]DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}

	results := make([]DeleteResult, len(ids))
	for i, id := range ids {
		m.remove(id)
		results[i] = DeleteResult{ID: id}
	}
	return results, nil
}

// begin checks ctx and pops an injected failure. Caller holds mu.
func (m *Memory) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	return nil
}

func (m *Memory) put(r record.Record) {
	m.rows[r.ID] = row{rec: r, seq: m.clock.Next()}
	delete(m.tombstones, r.ID)
}

func (m *Memory) remove(id string) {
	if _, ok := m.rows[id]; !ok {
		return
	}
	delete(m.rows, id)
	m.tombstones[id] = m.clock.Next()
}

func (m *Memory) live() []record.Record {
	out := make([]record.Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.rec)
	}
	slices.SortFunc(out, func(a, b record.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *Memory) token() string {
	return strconv.FormatInt(m.clock.Current(), 10)
}
