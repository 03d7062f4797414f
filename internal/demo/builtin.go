package demo

// Builtin returns the bundled scenarios: the offline-convergence walk-through
// under allow-overwrite and the contested-field walk-through under strict
// first-wins.
func Builtin() []*Scenario {
	online := true
	offline := false

	return []*Scenario{
		{
			Name:        "offline-convergence",
			Description: "Two replicas make non-overlapping edits, one of them offline; after syncing, both hold both edits.",
			Seed:        7,
			Setup: []NodeSpec{
				{Node: "nodeA", Fields: map[string]string{"title": "Settings", "color": "blue"}},
				{Node: "nodeB", Fields: map[string]string{"title": "Profile", "color": "green"}},
			},
			Replicas: []ReplicaSpec{
				{ID: "replica-a"},
				{ID: "replica-b"},
			},
			Flow: []FlowStep{
				{Replica: "replica-a", Sync: true},
				{Replica: "replica-b", Sync: true},
				{Replica: "replica-a", Set: &SetStep{Node: "nodeA", Field: "title", Value: "Settings v2"}},
				{Replica: "replica-a", Sync: true},
				{Replica: "replica-b", Online: &offline},
				{Replica: "replica-b", Set: &SetStep{Node: "nodeB", Field: "color", Value: "red"}},
				{Replica: "replica-b", Sync: true}, // no-op: реплика offline
				{Replica: "replica-b", Online: &online},
				{Replica: "replica-b", Sync: true},
				{Replica: "replica-a", Sync: true},
			},
			Expect: Expectation{
				Version:   3,
				Converged: true,
				Fields: []FieldExpect{
					{Node: "nodeA", Field: "title", Value: "Settings v2"},
					{Node: "nodeB", Field: "color", Value: "red"},
				},
			},
		},
		{
			Name:        "strict-first-wins",
			Description: "Both replicas edit the same field; the first committer wins, the loser's non-conflicting edit survives.",
			Seed:        11,
			Setup: []NodeSpec{
				{Node: "nodeA", Fields: map[string]string{"title": "Base"}},
			},
			Replicas: []ReplicaSpec{
				{ID: "replica-a", Policy: PolicyFirstWins},
				{ID: "replica-b", Policy: PolicyFirstWins},
			},
			Flow: []FlowStep{
				{Replica: "replica-a", Sync: true},
				{Replica: "replica-b", Sync: true},
				{Replica: "replica-a", Set: &SetStep{Node: "nodeA", Field: "title", Value: "First"}},
				{Replica: "replica-a", Sync: true},
				{Replica: "replica-b", Online: &offline},
				{Replica: "replica-b", Set: &SetStep{Node: "nodeA", Field: "title", Value: "Second"}},
				{Replica: "replica-b", Set: &SetStep{Node: "nodeB", Field: "note", Value: "kept"}},
				{Replica: "replica-b", Online: &online},
				{Replica: "replica-b", Sync: true},
				{Replica: "replica-a", Sync: true},
			},
			Expect: Expectation{
				Version:   3,
				Converged: true,
				Fields: []FieldExpect{
					{Node: "nodeA", Field: "title", Value: "First"},
					{Node: "nodeB", Field: "note", Value: "kept"},
				},
			},
		},
	}
}
