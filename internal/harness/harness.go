package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/outline/internal/engine"
	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/store"
	"github.com/roach88/outline/internal/syncer"
	"github.com/roach88/outline/internal/testutil"
)

// Harness holds the replicas of one scenario run.
type Harness struct {
	server   *remote.Memory
	clock    *testutil.DeterministicClock
	replicas map[string]*replica
	order    []string
	logger   *slog.Logger
}

type replica struct {
	name   string
	engine *engine.Engine
	store  *store.Store
	stop   func()
}

// Run executes a scenario and returns the result.
//
// Each replica runs on a fresh in-memory database. An error is returned
// only when the run could not be set up or a step could not be carried
// out; failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewDeterministicClock(testutil.StartAt(scenario.ServerClock))
	h := &Harness{
		server:   remote.NewMemory(remote.WithName("harness"), remote.WithClock(clock)),
		clock:    clock,
		replicas: make(map[string]*replica),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	defer h.close()

	for _, name := range scenario.Replicas {
		if err := h.start(name); err != nil {
			return nil, fmt.Errorf("failed to start replica %q: %w", name, err)
		}
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	for _, name := range h.order {
		outline, err := h.replicas[name].outline(ctx)
		if err != nil {
			return nil, err
		}
		result.Outlines[name] = outline
	}
	result.Server = h.server.Records()
	return result, nil
}

func (h *Harness) start(name string) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return err
	}
	eng := engine.New(
		engine.WithLogger(h.logger),
		engine.WithLocalStore(st),
		engine.WithRemote(h.server, st),
		engine.WithSyncOptions(syncer.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		})),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()

	h.replicas[name] = &replica{
		name:   name,
		engine: eng,
		store:  st,
		stop: func() {
			cancel()
			<-done
			st.Close()
		},
	}
	h.order = append(h.order, name)
	return nil
}

func (h *Harness) close() {
	for _, name := range h.order {
		h.replicas[name].stop()
	}
}

// target returns the replica a step or assertion addresses.
func (h *Harness) target(name string) *replica {
	if name == "" {
		return h.replicas[h.order[0]]
	}
	return h.replicas[name]
}

func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	r := h.target(step.Replica)
	switch {
	case step.Sync != nil:
		h.sync(ctx, r, step.Sync, result)
		return nil
	case step.Server != nil:
		return h.serverStep(step.Server)
	}

	var stepErr error
	err := r.engine.Do(ctx, func() { stepErr = r.apply(step) })
	if err != nil {
		return err
	}
	return stepErr
}

// apply runs a local step. Called inside the replica's task loop.
func (r *replica) apply(step Step) error {
	trees := r.engine.Trees()
	records := r.engine.Records()
	switch {
	case step.Receive != nil:
		records.Save(step.Receive, recordstore.OriginRemote)
	case step.Write != nil:
		records.Save(step.Write, recordstore.OriginUser)
	case step.Add != nil:
		node, err := step.Add.build()
		if err != nil {
			return err
		}
		return trees.Add(node)
	case step.Delete != nil:
		trees.DeleteItems(step.Delete)
	case step.Relocate != nil:
		var parent *string
		if step.Relocate.Parent != "" {
			parent = record.Ptr(step.Relocate.Parent)
		}
		return trees.Relocate(step.Relocate.ID, parent, step.Relocate.Position)
	case step.Move != nil:
		parent, err := r.node(step.Move.Parent)
		if err != nil {
			return err
		}
		return parent.Move(step.Move.From, step.Move.To)
	case step.Remove != nil:
		parent, err := r.node(step.Remove.Parent)
		if err != nil {
			return err
		}
		_, err = parent.Remove(step.Remove.Indexes)
		return err
	case step.Group != nil:
		parent, err := r.node(step.Group.Parent)
		if err != nil {
			return err
		}
		wrapper, err := step.Group.Wrapper.build()
		if err != nil {
			return err
		}
		return parent.Group(step.Group.Indexes, wrapper)
	case step.Undelete != "":
		parent, err := r.node(step.Undelete)
		if err != nil {
			return err
		}
		return parent.Undelete()
	case step.Set != nil:
		n, err := r.node(step.Set.ID)
		if err != nil {
			return err
		}
		data, err := record.ParseData(step.Set.Text, step.Set.State, step.Set.Tag)
		if err != nil {
			return err
		}
		n.SetData(data)
	}
	return nil
}

func (r *replica) node(id string) (*record.Item, error) {
	n, ok := r.engine.Trees().Node(id)
	if !ok {
		return nil, fmt.Errorf("replica %q: no item %q", r.name, id)
	}
	return n, nil
}

func (r *replica) outline(ctx context.Context) (string, error) {
	var out string
	err := r.engine.Do(ctx, func() { out = record.Render(r.engine.Trees().Roots()) })
	return out, err
}

func (h *Harness) sync(ctx context.Context, r *replica, step *SyncStep, result *Result) {
	if step.Enable {
		r.engine.EnableSync()
	}
	report, err := r.engine.Sync(ctx)

	switch step.Error {
	case "":
		if err != nil {
			result.AddError(fmt.Sprintf("sync %s: unexpected error: %v", r.name, err))
			return
		}
	case "retryable":
		if !remote.IsRetryable(err) {
			result.AddError(fmt.Sprintf("sync %s: expected a retryable error, got %v", r.name, err))
		}
		return
	case "terminal":
		if !remote.IsTerminal(err) {
			result.AddError(fmt.Sprintf("sync %s: expected a terminal error, got %v", r.name, err))
		}
		return
	case "disabled":
		if !errors.Is(err, syncer.ErrDisabled) {
			result.AddError(fmt.Sprintf("sync %s: expected sync to be disabled, got %v", r.name, err))
		}
		return
	}

	if step.Expect == nil {
		return
	}
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			result.AddError(fmt.Sprintf("sync %s: %s = %d, expected %d", r.name, name, got, *want))
		}
	}
	check("pushed", step.Expect.Pushed, report.Pushed)
	check("deleted", step.Expect.Deleted, report.Deleted)
	check("conflicts", step.Expect.Conflicts, report.Conflicts)
	check("failed", step.Expect.Failed, report.Failed)
	check("fetched", step.Expect.Fetched, report.Fetched)
	check("removed", step.Expect.Removed, report.Removed)
}

func (h *Harness) serverStep(step *ServerStep) error {
	if len(step.Put) > 0 {
		h.server.Put(step.Put...)
	}
	if len(step.Remove) > 0 {
		h.server.Remove(step.Remove...)
	}
	if step.Skip > 0 {
		h.clock.Skip(step.Skip)
	}
	for _, kind := range step.Fail {
		err, parseErr := remoteError(kind)
		if parseErr != nil {
			return parseErr
		}
		h.server.FailWith(err)
	}
	return nil
}

func remoteError(kind string) (error, error) {
	switch kind {
	case "network":
		return remote.NewNetworkError(errors.New("connection reset")), nil
	case "rate_limited":
		return remote.NewRateLimitError(time.Second), nil
	case "auth":
		return remote.NewAuthError("session expired"), nil
	case "permission":
		return remote.NewPermissionError("read-only share"), nil
	default:
		return nil, fmt.Errorf("unknown remote failure %q", kind)
	}
}

func (t *Tree) build() (*record.Item, error) {
	data, err := record.ParseData(t.Text, t.State, t.Tag)
	if err != nil {
		return nil, fmt.Errorf("item %q: %w", t.ID, err)
	}
	n := record.NewItem(t.ID, data)
	for _, c := range t.Children {
		child, err := c.build()
		if err != nil {
			return nil, err
		}
		if err := n.Insert([]*record.Item{child}, n.ChildCount()); err != nil {
			return nil, err
		}
	}
	return n, nil
}
