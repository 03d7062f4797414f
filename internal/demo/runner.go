package demo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/iudanet/docsync/internal/client"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/netsim"
	"github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/pkg/api"
)

// seedReplicaID commits the scenario's base document as version 1.
const seedReplicaID = "replica-seed"

// Report is the outcome of a scenario run.
type Report struct {
	// Replicas maps replica id to its final state.
	Replicas map[string]ReplicaState

	// Scenario is the name of the executed scenario.
	Scenario string

	// Failures lists violated expectations; empty means the run passed.
	Failures []string

	// LogTail holds the committed entries, oldest first.
	LogTail []api.LogEntry

	// Version is the final server version.
	Version int64
}

// ReplicaState is one replica's final state summary.
type ReplicaState struct {
	Document  map[string]map[string]string
	Touched   []string
	LastAcked int64
	Online    bool
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Runner executes scenarios against a fresh in-memory ordering server.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a scenario runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes the scenario flow strictly in order and validates the
// expectations. An error means the run itself could not proceed;
// expectation mismatches are reported through Report.Failures.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r.logger.Info("Running scenario", "name", s.Name, "seed", s.Seed)

	log := server.NewLog(r.logger)

	if len(s.Setup) > 0 {
		if err := r.seed(ctx, log, s.Setup); err != nil {
			return nil, fmt.Errorf("seed base document: %w", err)
		}
	}

	clients := make(map[string]*client.Client, len(s.Replicas))
	for i, spec := range s.Replicas {
		policy := client.Policy(client.NewAllowOverwrite())
		if spec.Policy == PolicyFirstWins {
			policy = client.NewFirstWins()
		}

		var ordering client.Ordering = log
		if s.MaxLatencyMS > 0 {
			ordering = netsim.Wrap(log,
				time.Duration(s.MinLatencyMS)*time.Millisecond,
				time.Duration(s.MaxLatencyMS)*time.Millisecond,
				s.Seed+int64(i))
		}

		var opts []client.Option
		if spec.Offline {
			opts = append(opts, client.WithOffline())
		}
		clients[spec.ID] = client.New(spec.ID, ordering, policy, r.logger, opts...)
	}

	for i, step := range s.Flow {
		if err := r.runStep(ctx, clients[step.Replica], step); err != nil {
			return nil, fmt.Errorf("flow step %d (replica %s): %w", i, step.Replica, err)
		}
	}

	report := &Report{
		Scenario: s.Name,
		Replicas: make(map[string]ReplicaState, len(clients)),
		Version:  log.Version(),
	}
	for id, c := range clients {
		report.Replicas[id] = ReplicaState{
			Document:  c.Snapshot(),
			LastAcked: c.LastAckedVersion(),
			Touched:   c.TouchedPaths(),
			Online:    c.Online(),
		}
	}

	tail, err := log.FetchSince(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch log tail: %w", err)
	}
	report.LogTail = tail

	r.check(s, clients, report)

	r.logger.Info("Scenario finished",
		"name", s.Name,
		"version", report.Version,
		"failures", len(report.Failures))
	return report, nil
}

func (r *Runner) seed(ctx context.Context, log *server.Log, setup []NodeSpec) error {
	seed := client.New(seedReplicaID, log, client.NewAllowOverwrite(), r.logger)
	seed.Edit(func(tx *crdt.Tx) {
		for _, spec := range setup {
			tx.PutNode(spec.Node, spec.Fields)
		}
	})

	result, err := seed.Sync(ctx)
	if err != nil {
		return err
	}
	if !result.Committed {
		return fmt.Errorf("base document commit produced no entry")
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, c *client.Client, step FlowStep) error {
	switch {
	case step.Set != nil:
		c.Edit(func(tx *crdt.Tx) {
			tx.SetField(step.Set.Node, step.Set.Field, step.Set.Value)
		})
	case step.DeleteNode != "":
		c.Edit(func(tx *crdt.Tx) {
			tx.DeleteNode(step.DeleteNode)
		})
	case step.Sync:
		if _, err := c.Sync(ctx); err != nil {
			return err
		}
	case step.Resync:
		if err := c.Resync(ctx); err != nil {
			return err
		}
	case step.Undo:
		if !c.Undo() {
			return fmt.Errorf("nothing to undo")
		}
	case step.Online != nil:
		c.SetOnline(*step.Online)
	}
	return nil
}

func (r *Runner) check(s *Scenario, clients map[string]*client.Client, report *Report) {
	fail := func(format string, args ...any) {
		report.Failures = append(report.Failures, fmt.Sprintf(format, args...))
	}

	if s.Expect.Version > 0 {
		if report.Version != s.Expect.Version {
			fail("server version = %d, want %d", report.Version, s.Expect.Version)
		}
		for id, c := range clients {
			if c.LastAckedVersion() != s.Expect.Version {
				fail("replica %s acked version %d, want %d", id, c.LastAckedVersion(), s.Expect.Version)
			}
		}
	}

	for _, expect := range s.Expect.Fields {
		for id, c := range clients {
			if expect.Replica != "" && expect.Replica != id {
				continue
			}
			got, ok := c.Get(expect.Node, expect.Field)
			if !ok {
				fail("replica %s: %s.%s is missing, want %q", id, expect.Node, expect.Field, expect.Value)
				continue
			}
			if got != expect.Value {
				fail("replica %s: %s.%s = %q, want %q", id, expect.Node, expect.Field, got, expect.Value)
			}
		}
	}

	if s.Expect.Converged {
		ids := make([]string, 0, len(clients))
		for id := range clients {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		var baseID string
		var base string
		for _, id := range ids {
			rendered := renderDocument(clients[id].Snapshot())
			if baseID == "" {
				baseID, base = id, rendered
				continue
			}
			if rendered != base {
				fail("replica %s did not converge with %s", id, baseID)
			}
		}
	}
}

// renderDocument formats a snapshot deterministically, for convergence
// comparison and state summaries.
func renderDocument(doc map[string]map[string]string) string {
	nodes := make([]string, 0, len(doc))
	for id := range doc {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	var b strings.Builder
	for _, id := range nodes {
		fields := doc[id]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString(id)
		b.WriteString("{")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%q", name, fields[name])
		}
		b.WriteString("} ")
	}
	return strings.TrimSpace(b.String())
}

// Summary renders a human-readable report: per-replica state plus the log
// tail.
func (r *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario %s: ", r.Scenario)
	if r.Passed() {
		b.WriteString("PASS\n")
	} else {
		b.WriteString("FAIL\n")
	}
	fmt.Fprintf(&b, "server version: %d\n", r.Version)

	ids := make([]string, 0, len(r.Replicas))
	for id := range r.Replicas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		state := r.Replicas[id]
		fmt.Fprintf(&b, "  %s (acked=%d, online=%v): %s\n",
			id, state.LastAcked, state.Online, renderDocument(state.Document))
	}

	b.WriteString("log tail:\n")
	for _, entry := range r.LogTail {
		fmt.Fprintf(&b, "  v%d by %s touched=%v\n", entry.Version, entry.CommitterID, entry.TouchedPaths)
	}

	for _, failure := range r.Failures {
		fmt.Fprintf(&b, "expectation failed: %s\n", failure)
	}
	return b.String()
}
