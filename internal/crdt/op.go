package crdt

import (
	"encoding/json"
	"sort"
)

// OpKind identifies the kind of a single document edit.
type OpKind string

// Supported edit kinds.
const (
	OpPutNode  OpKind = "put_node"
	OpDelNode  OpKind = "del_node"
	OpSetField OpKind = "set_field"
	OpDelField OpKind = "del_field"
)

// Op is one edit in a document's history. Ops from a single actor carry
// contiguous sequence numbers starting at 1; the Lamport timestamp orders
// edits across actors for last-write-wins resolution.
type Op struct {
	Kind      OpKind `json:"kind"`
	Actor     string `json:"actor"`
	Node      string `json:"node"`
	Field     string `json:"field,omitempty"`
	Value     string `json:"value,omitempty"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

// Path returns the touched path of the op: "node" for node lifecycle ops,
// "node.field" for field ops.
func (op Op) Path() string {
	if op.Field == "" {
		return op.Node
	}
	return op.Node + "." + op.Field
}

// newerThan сравнивает две правки по правилу LWW (Last-Write-Wins):
// 1. Сначала сравнивается Timestamp (больший выигрывает)
// 2. При равных Timestamp сравнивается Actor (лексикографически)
func (op Op) newerThan(ts int64, actor string) bool {
	if op.Timestamp != ts {
		return op.Timestamp > ts
	}
	return op.Actor > actor
}

// ChangeSet is a transferable batch of ops between two history points.
// It is applied atomically and may be concatenated with other change-sets.
type ChangeSet struct {
	Ops []Op `json:"ops"`
}

// Empty reports whether the change-set carries no ops.
func (cs ChangeSet) Empty() bool {
	return len(cs.Ops) == 0
}

// Merge appends the ops of other after the ops of cs, returning the
// combined change-set. Neither input is modified.
func (cs ChangeSet) Merge(other ChangeSet) ChangeSet {
	ops := make([]Op, 0, len(cs.Ops)+len(other.Ops))
	ops = append(ops, cs.Ops...)
	ops = append(ops, other.Ops...)
	return ChangeSet{Ops: ops}
}

// TouchedPaths returns the sorted set of document paths touched by the
// change-set.
func (cs ChangeSet) TouchedPaths() []string {
	seen := make(map[string]struct{}, len(cs.Ops))
	paths := make([]string, 0, len(cs.Ops))
	for _, op := range cs.Ops {
		p := op.Path()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Marshal serializes the change-set for transfer through the ordering log.
func (cs ChangeSet) Marshal() ([]byte, error) {
	return json.Marshal(cs)
}

// UnmarshalChangeSet deserializes a change-set produced by Marshal.
func UnmarshalChangeSet(data []byte) (ChangeSet, error) {
	var cs ChangeSet
	if err := json.Unmarshal(data, &cs); err != nil {
		return ChangeSet{}, err
	}
	return cs, nil
}
