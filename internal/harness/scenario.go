package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/outline/internal/record"
)

// DefaultReplica names the replica of scenarios that list none.
const DefaultReplica = "main"

// Scenario is one harness run.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas names the replicas to start. Defaults to [main].
	Replicas []string `yaml:"replicas,omitempty"`

	// ServerClock is where the server's change clock starts, as for a
	// server that already has history.
	ServerClock int64 `yaml:"server_clock,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against a replica or the server. Exactly one action
// field is set.
type Step struct {
	Replica string `yaml:"replica,omitempty"`

	Receive  []record.Record `yaml:"receive,omitempty"`
	Write    []record.Record `yaml:"write,omitempty"`
	Add      *Tree           `yaml:"add,omitempty"`
	Delete   []string        `yaml:"delete,omitempty"`
	Relocate *Relocation     `yaml:"relocate,omitempty"`
	Move     *Move           `yaml:"move,omitempty"`
	Remove   *Removal        `yaml:"remove,omitempty"`
	Group    *Grouping       `yaml:"group,omitempty"`
	Undelete string          `yaml:"undelete,omitempty"`
	Set      *Content        `yaml:"set,omitempty"`
	Sync     *SyncStep       `yaml:"sync,omitempty"`
	Server   *ServerStep     `yaml:"server,omitempty"`
}

// Tree is a nested item.
type Tree struct {
	ID       string  `yaml:"id"`
	Text     string  `yaml:"text"`
	State    string  `yaml:"state,omitempty"`
	Tag      string  `yaml:"tag,omitempty"`
	Children []*Tree `yaml:"children,omitempty"`
}

// Relocation moves item ID under Parent ("" for the top level).
type Relocation struct {
	ID       string `yaml:"id"`
	Parent   string `yaml:"parent,omitempty"`
	Position int    `yaml:"position"`
}

// Move reorders a child of Parent.
type Move struct {
	Parent string `yaml:"parent"`
	From   int    `yaml:"from"`
	To     int    `yaml:"to"`
}

// Removal detaches children of Parent through the tree API.
type Removal struct {
	Parent  string `yaml:"parent"`
	Indexes []int  `yaml:"indexes"`
}

// Grouping wraps children of Parent in a new item.
type Grouping struct {
	Parent  string `yaml:"parent"`
	Indexes []int  `yaml:"indexes"`
	Wrapper Tree   `yaml:"wrapper"`
}

// Content replaces the data of item ID. Unset fields are cleared.
type Content struct {
	ID    string `yaml:"id"`
	Text  string `yaml:"text"`
	State string `yaml:"state,omitempty"`
	Tag   string `yaml:"tag,omitempty"`
}

// SyncStep runs one sync.
type SyncStep struct {
	// Expect, if set, is compared with the sync report.
	Expect *SyncCounts `yaml:"expect,omitempty"`

	// Error expects the sync to fail: retryable, terminal or disabled.
	Error string `yaml:"error,omitempty"`

	// Enable clears a terminal error before syncing.
	Enable bool `yaml:"enable,omitempty"`
}

// SyncCounts is a subset of a sync report; unset counts are not checked.
type SyncCounts struct {
	Pushed    *int `yaml:"pushed,omitempty"`
	Deleted   *int `yaml:"deleted,omitempty"`
	Conflicts *int `yaml:"conflicts,omitempty"`
	Failed    *int `yaml:"failed,omitempty"`
	Fetched   *int `yaml:"fetched,omitempty"`
	Removed   *int `yaml:"removed,omitempty"`
}

// ServerStep changes the server as another client would.
type ServerStep struct {
	Put    []record.Record `yaml:"put,omitempty"`
	Remove []string        `yaml:"remove,omitempty"`

	// Fail queues remote failures: network, rate_limited, auth, permission.
	Fail []string `yaml:"fail,omitempty"`

	// Skip advances the server's change clock as writes to unrelated
	// records would.
	Skip int64 `yaml:"skip,omitempty"`
}

// Assertion type constants.
const (
	AssertOutline     = "outline"
	AssertConverged   = "converged"
	AssertRecord      = "record"
	AssertAbsent      = "absent"
	AssertOrphans     = "orphans"
	AssertPending     = "pending"
	AssertLeafCount   = "leaf_count"
	AssertServer      = "server"
	AssertServerCount = "server_count"
)

var assertionTypes = []string{
	AssertOutline, AssertConverged, AssertRecord, AssertAbsent, AssertOrphans,
	AssertPending, AssertLeafCount, AssertServer, AssertServerCount,
}

// Assertion checks the state after the last step.
type Assertion struct {
	Type    string `yaml:"type"`
	Replica string `yaml:"replica,omitempty"`

	// Expect is the rendered outline (outline).
	Expect string `yaml:"expect,omitempty"`

	// ID names the item (record, absent, leaf_count, server).
	ID string `yaml:"id,omitempty"`

	// Fields is the subset to match (record, server).
	Fields *Fields `yaml:"fields,omitempty"`

	// Count is the expected number (orphans, pending, leaf_count,
	// server_count).
	Count *int `yaml:"count,omitempty"`
}

// Fields is a subset of a record. Parent "" matches a root.
type Fields struct {
	Text     *string `yaml:"text,omitempty"`
	Parent   *string `yaml:"parent,omitempty"`
	Position *int    `yaml:"position,omitempty"`
	State    *string `yaml:"state,omitempty"`
	Tag      *string `yaml:"tag,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(scenario.Replicas) == 0 {
		scenario.Replicas = []string{DefaultReplica}
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, name := range s.Replicas {
		if name == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if slices.Index(s.Replicas, name) != i {
			return fmt.Errorf("replicas[%d]: duplicate name %q", i, name)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(s, i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(s, i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, index int, step *Step) error {
	if step.Replica != "" && !slices.Contains(s.Replicas, step.Replica) {
		return fmt.Errorf("steps[%d]: unknown replica %q", index, step.Replica)
	}
	actions := 0
	for _, set := range []bool{
		step.Receive != nil, step.Write != nil, step.Add != nil, step.Delete != nil,
		step.Relocate != nil, step.Move != nil, step.Remove != nil, step.Group != nil,
		step.Undelete != "", step.Set != nil, step.Sync != nil, step.Server != nil,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}
	if step.Sync != nil {
		switch step.Sync.Error {
		case "", "retryable", "terminal", "disabled":
		default:
			return fmt.Errorf("steps[%d].sync: unknown error kind %q", index, step.Sync.Error)
		}
	}
	if step.Server != nil {
		for _, kind := range step.Server.Fail {
			if _, err := remoteError(kind); err != nil {
				return fmt.Errorf("steps[%d].server: %w", index, err)
			}
		}
	}
	return nil
}

func validateAssertion(s *Scenario, index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !slices.Contains(assertionTypes, a.Type) {
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Replica != "" && !slices.Contains(s.Replicas, a.Replica) {
		return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
	}
	switch a.Type {
	case AssertRecord, AssertServer:
		if a.ID == "" || a.Fields == nil {
			return fmt.Errorf("assertions[%d]: id and fields are required for %s", index, a.Type)
		}
	case AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for absent", index)
		}
	case AssertLeafCount:
		if a.ID == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: id and count are required for leaf_count", index)
		}
	case AssertOrphans, AssertPending, AssertServerCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
	}
	return nil
}
