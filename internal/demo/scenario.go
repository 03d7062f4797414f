package demo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted multi-replica demo run. A scenario seeds a
// shared base document, drives replicas through a deterministic flow of
// edits, connectivity changes and sync cycles, and asserts on the final
// state of every replica.
type Scenario struct {
	// Name uniquely identifies the scenario.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Seed drives the artificial network latency; a given seed replays
	// the same delays.
	Seed int64 `yaml:"seed,omitempty"`

	// MinLatencyMS and MaxLatencyMS bound the artificial latency of each
	// server call, in milliseconds.
	MinLatencyMS int `yaml:"min_latency_ms,omitempty"`
	MaxLatencyMS int `yaml:"max_latency_ms,omitempty"`

	// Setup lists nodes committed as version 1 before the flow starts,
	// so every replica shares the same base document.
	Setup []NodeSpec `yaml:"setup,omitempty"`

	// Replicas declares the participating replicas.
	Replicas []ReplicaSpec `yaml:"replicas"`

	// Flow is the script: steps run strictly in order, each against the
	// named replica.
	Flow []FlowStep `yaml:"flow"`

	// Expect validates the final state after the flow completes.
	Expect Expectation `yaml:"expect,omitempty"`
}

// NodeSpec seeds one node of the base document.
type NodeSpec struct {
	Node   string            `yaml:"node"`
	Fields map[string]string `yaml:"fields"`
}

// ReplicaSpec declares one replica.
type ReplicaSpec struct {
	// ID is the replica id (also its CRDT actor id).
	ID string `yaml:"id"`

	// Policy selects the conflict policy: "allow-overwrite" (default) or
	// "strict-first-wins".
	Policy string `yaml:"policy,omitempty"`

	// Offline starts the replica without connectivity.
	Offline bool `yaml:"offline,omitempty"`
}

// FlowStep is one scripted action. Exactly one action field must be set.
type FlowStep struct {
	// Replica names the replica the action applies to.
	Replica string `yaml:"replica"`

	// Set writes a single field value.
	Set *SetStep `yaml:"set,omitempty"`

	// DeleteNode removes a node.
	DeleteNode string `yaml:"delete_node,omitempty"`

	// Sync runs one sync cycle.
	Sync bool `yaml:"sync,omitempty"`

	// Resync rebuilds the replica from the full log.
	Resync bool `yaml:"resync,omitempty"`

	// Undo reverts the replica's most recent edit.
	Undo bool `yaml:"undo,omitempty"`

	// Online toggles connectivity.
	Online *bool `yaml:"online,omitempty"`
}

// SetStep is a single field write.
type SetStep struct {
	Node  string `yaml:"node"`
	Field string `yaml:"field"`
	Value string `yaml:"value"`
}

// Expectation validates the final state of the run.
type Expectation struct {
	// Fields lists expected final field values, checked on every replica
	// unless Replica narrows the check.
	Fields []FieldExpect `yaml:"fields,omitempty"`

	// Version, when non-zero, is the expected final server version; every
	// replica must also have acknowledged it.
	Version int64 `yaml:"version,omitempty"`

	// Converged requires all replicas to hold field-for-field identical
	// documents.
	Converged bool `yaml:"converged,omitempty"`
}

// FieldExpect is one expected field value.
type FieldExpect struct {
	Node    string `yaml:"node"`
	Field   string `yaml:"field"`
	Value   string `yaml:"value"`
	Replica string `yaml:"replica,omitempty"`
}

// Policy names accepted in scenarios.
const (
	PolicyAllowOverwrite = "allow-overwrite"
	PolicyFirstWins      = "strict-first-wins"
)

// Load reads and validates a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks structural consistency of the scenario.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("at least one replica is required")
	}

	known := make(map[string]struct{}, len(s.Replicas))
	for _, r := range s.Replicas {
		if r.ID == "" {
			return fmt.Errorf("replica id is required")
		}
		if _, ok := known[r.ID]; ok {
			return fmt.Errorf("duplicate replica id %q", r.ID)
		}
		known[r.ID] = struct{}{}

		switch r.Policy {
		case "", PolicyAllowOverwrite, PolicyFirstWins:
		default:
			return fmt.Errorf("replica %q: unknown policy %q", r.ID, r.Policy)
		}
	}

	for i, step := range s.Flow {
		if _, ok := known[step.Replica]; !ok {
			return fmt.Errorf("flow step %d: unknown replica %q", i, step.Replica)
		}

		actions := 0
		if step.Set != nil {
			actions++
		}
		if step.DeleteNode != "" {
			actions++
		}
		if step.Sync {
			actions++
		}
		if step.Resync {
			actions++
		}
		if step.Undo {
			actions++
		}
		if step.Online != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("flow step %d: exactly one action is required, got %d", i, actions)
		}
	}

	if s.MaxLatencyMS < s.MinLatencyMS {
		return fmt.Errorf("max_latency_ms must not be below min_latency_ms")
	}
	return nil
}
