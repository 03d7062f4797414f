package demo

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestRunner_BuiltinScenarios(t *testing.T) {
	for _, scenario := range Builtin() {
		t.Run(scenario.Name, func(t *testing.T) {
			runner := NewRunner(newTestLogger())

			report, err := runner.Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, report.Passed(), "failures: %v", report.Failures)
			assert.Equal(t, int64(3), report.Version)
			assert.Len(t, report.LogTail, 3)
		})
	}
}

func TestRunner_ReportsExpectationFailure(t *testing.T) {
	s := &Scenario{
		Name: "wrong-expectation",
		Setup: []NodeSpec{
			{Node: "nodeA", Fields: map[string]string{"title": "Settings"}},
		},
		Replicas: []ReplicaSpec{{ID: "replica-a"}},
		Flow: []FlowStep{
			{Replica: "replica-a", Sync: true},
		},
		Expect: Expectation{
			Fields: []FieldExpect{
				{Node: "nodeA", Field: "title", Value: "Other"},
			},
		},
	}

	report, err := NewRunner(newTestLogger()).Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, report.Passed())
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], `nodeA.title = "Settings"`)
}

func TestRunner_UndoAndResyncSteps(t *testing.T) {
	s := &Scenario{
		Name: "undo-resync",
		Setup: []NodeSpec{
			{Node: "nodeA", Fields: map[string]string{"title": "Base"}},
		},
		Replicas: []ReplicaSpec{
			{ID: "replica-a"},
			{ID: "replica-b"},
		},
		Flow: []FlowStep{
			{Replica: "replica-a", Sync: true},
			{Replica: "replica-b", Sync: true},
			// Снимок undo у B взят до записи A.
			{Replica: "replica-b", Set: &SetStep{Node: "nodeA", Field: "color", Value: "red"}},
			{Replica: "replica-a", Set: &SetStep{Node: "nodeA", Field: "title", Value: "v2"}},
			{Replica: "replica-a", Sync: true},
			{Replica: "replica-b", Sync: true},
			// Откат рвет причинность; resync восстанавливает реплику.
			{Replica: "replica-b", Undo: true},
			{Replica: "replica-b", Resync: true},
			{Replica: "replica-b", Sync: true},
			{Replica: "replica-a", Sync: true},
		},
		Expect: Expectation{
			Version:   3,
			Converged: true,
			Fields: []FieldExpect{
				{Node: "nodeA", Field: "title", Value: "v2"},
				{Node: "nodeA", Field: "color", Value: "red"},
			},
		},
	}

	report, err := NewRunner(newTestLogger()).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, report.Passed(), "failures: %v", report.Failures)
}

func TestReport_Summary(t *testing.T) {
	report, err := NewRunner(newTestLogger()).Run(context.Background(), Builtin()[0])
	require.NoError(t, err)

	summary := report.Summary()
	assert.Contains(t, summary, "scenario offline-convergence: PASS")
	assert.Contains(t, summary, "server version: 3")
	assert.Contains(t, summary, "replica-a")
	assert.Contains(t, summary, "v3 by replica-b")
}

func TestRunContention(t *testing.T) {
	err := RunContention(context.Background(), newTestLogger(), 4, 3, 99)
	assert.NoError(t, err)
}
