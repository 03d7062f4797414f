package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// register представляет LWW-ячейку: значение поля или присутствие узла.
// При слиянии выигрывает правка с большим Timestamp, при равных Timestamp —
// с лексикографически большим Actor (детерминированный выбор).
type register struct {
	Value     string `json:"value,omitempty"`
	Actor     string `json:"actor"`
	Timestamp int64  `json:"timestamp"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// losesTo reports whether op supersedes the register under LWW rules.
func (r register) losesTo(op Op) bool {
	return op.newerThan(r.Timestamp, r.Actor)
}

// node is one record of the document: a presence register (with tombstone
// for deletions) plus a register per field.
type node struct {
	Fields   map[string]register `json:"fields"`
	Presence register            `json:"presence"`
}

func (n *node) clone() *node {
	fields := make(map[string]register, len(n.Fields))
	for name, reg := range n.Fields {
		fields[name] = reg
	}
	return &node{Fields: fields, Presence: n.Presence}
}

// Doc is a structured document replica: a mapping of node id to node record
// plus an ordering sequence of node ids. Each replica owns its Doc
// exclusively; concurrent edits from other replicas arrive only through
// ApplyRemote. Field values merge by last-write-wins at register
// granularity, so the merge is commutative, associative and idempotent.
//
// Doc is not safe for concurrent use; a replica is a single logical thread
// of control.
type Doc struct {
	clock *LamportClock
	nodes map[string]*node
	head  Point
	order []string
	hist  []Op
}

// New creates an empty document owned by the given actor (replica) id.
func New(actorID string) *Doc {
	return &Doc{
		clock: NewLamportClockWithActorID(actorID),
		nodes: make(map[string]*node),
		head:  make(Point),
	}
}

// ActorID returns the id of the replica owning this document.
func (d *Doc) ActorID() string {
	return d.clock.ActorID()
}

// Clone создает глубокую копию документа, включая историю и часы.
func (d *Doc) Clone() *Doc {
	c := New(d.clock.ActorID())
	c.clock.SetTimestamp(d.clock.Timestamp())
	for id, n := range d.nodes {
		c.nodes[id] = n.clone()
	}
	c.order = append([]string(nil), d.order...)
	c.hist = append([]Op(nil), d.hist...)
	c.head = d.head.Clone()
	return c
}

// Tx records the edits of a single Update call.
type Tx struct {
	doc *Doc
}

// PutNode creates or resurrects a node and sets the given fields.
func (t *Tx) PutNode(id string, fields map[string]string) {
	t.doc.record(Op{Kind: OpPutNode, Node: id})

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.doc.record(Op{Kind: OpSetField, Node: id, Field: name, Value: fields[name]})
	}
}

// DeleteNode removes a node (tombstone, soft delete).
func (t *Tx) DeleteNode(id string) {
	t.doc.record(Op{Kind: OpDelNode, Node: id})
}

// SetField sets a single field of a node, creating the node if needed.
func (t *Tx) SetField(nodeID, field, value string) {
	t.doc.record(Op{Kind: OpSetField, Node: nodeID, Field: field, Value: value})
}

// DeleteField removes a single field of a node (tombstone).
func (t *Tx) DeleteField(nodeID, field string) {
	t.doc.record(Op{Kind: OpDelField, Node: nodeID, Field: field})
}

// Update is the transactional local-mutation operation: fn records edits
// through the Tx, each edit is appended to the document's history with a
// fresh Lamport timestamp, and the new head point is returned.
func (d *Doc) Update(fn func(*Tx)) Point {
	fn(&Tx{doc: d})
	return d.Head()
}

// record стабилизирует локальную правку: назначает actor, seq и timestamp,
// применяет её и добавляет в историю.
func (d *Doc) record(op Op) {
	op.Actor = d.clock.ActorID()
	op.Seq = d.head[op.Actor] + 1
	op.Timestamp = d.clock.Tick()

	d.applyOp(op)
	d.hist = append(d.hist, op)
	d.head[op.Actor] = op.Seq
}

// applyOp applies one op to the materialized node state under LWW rules.
// Application is commutative: losing ops change nothing but still count as
// seen by the caller's history bookkeeping.
func (d *Doc) applyOp(op Op) {
	switch op.Kind {
	case OpPutNode, OpDelNode:
		deleted := op.Kind == OpDelNode
		n, ok := d.nodes[op.Node]
		if !ok {
			d.nodes[op.Node] = &node{
				Fields:   make(map[string]register),
				Presence: register{Actor: op.Actor, Timestamp: op.Timestamp, Deleted: deleted},
			}
			if !deleted {
				d.order = append(d.order, op.Node)
			}
			return
		}
		if !n.Presence.losesTo(op) {
			return
		}
		wasDeleted := n.Presence.Deleted
		n.Presence = register{Actor: op.Actor, Timestamp: op.Timestamp, Deleted: deleted}
		if wasDeleted && !deleted {
			d.order = append(d.order, op.Node)
		}
		if !wasDeleted && deleted {
			d.dropFromOrder(op.Node)
		}
	case OpSetField, OpDelField:
		n, ok := d.nodes[op.Node]
		if !ok {
			// Поле на неизвестном узле неявно создает узел.
			n = &node{
				Fields:   make(map[string]register),
				Presence: register{Actor: op.Actor, Timestamp: op.Timestamp},
			}
			d.nodes[op.Node] = n
			d.order = append(d.order, op.Node)
		}
		reg, ok := n.Fields[op.Field]
		if !ok || reg.losesTo(op) {
			n.Fields[op.Field] = register{
				Value:     op.Value,
				Actor:     op.Actor,
				Timestamp: op.Timestamp,
				Deleted:   op.Kind == OpDelField,
			}
		}
	}
}

func (d *Doc) dropFromOrder(id string) {
	for i, existing := range d.order {
		if existing == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// Head returns the current history point of the document.
func (d *Doc) Head() Point {
	return d.head.Clone()
}

// ChangesSince returns the change-set between the given history point and
// the document's head. The point must be a causal ancestor of the head;
// otherwise ErrIncompatibleHistory is returned (history divergence, e.g.
// after an out-of-band state restoration).
func (d *Doc) ChangesSince(p Point) (ChangeSet, error) {
	if !p.AncestorOf(d.head) {
		return ChangeSet{}, fmt.Errorf("point is not an ancestor of head: %w", ErrIncompatibleHistory)
	}

	var ops []Op
	for _, op := range d.hist {
		if op.Seq > p[op.Actor] {
			ops = append(ops, op)
		}
	}
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Timestamp != ops[j].Timestamp {
			return ops[i].Timestamp < ops[j].Timestamp
		}
		if ops[i].Actor != ops[j].Actor {
			return ops[i].Actor < ops[j].Actor
		}
		return ops[i].Seq < ops[j].Seq
	})
	return ChangeSet{Ops: ops}, nil
}

// TouchedSince returns the sorted set of top-level document paths touched
// between the given history point and the head. Field edits record dotted
// "node.field" paths, node lifecycle edits record the bare node id.
func (d *Doc) TouchedSince(p Point) ([]string, error) {
	cs, err := d.ChangesSince(p)
	if err != nil {
		return nil, err
	}
	return cs.TouchedPaths(), nil
}

// ApplyRemote is the remote-application operation: it applies a change-set
// produced by another replica. Ops already seen are skipped (application is
// idempotent); a sequence gap relative to the document's history means the
// change-set is not causally applicable and fails with
// ErrIncompatibleHistory before any op is applied.
func (d *Doc) ApplyRemote(cs ChangeSet) error {
	pending := append([]Op(nil), cs.Ops...)
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Actor != pending[j].Actor {
			return pending[i].Actor < pending[j].Actor
		}
		return pending[i].Seq < pending[j].Seq
	})

	// Сначала проверяем непрерывность последовательностей, потом применяем:
	// change-set применяется атомарно.
	next := make(map[string]int64, len(pending))
	for _, op := range pending {
		if _, ok := next[op.Actor]; !ok {
			next[op.Actor] = d.head[op.Actor]
		}
		if op.Seq <= next[op.Actor] {
			continue
		}
		if op.Seq != next[op.Actor]+1 {
			return fmt.Errorf("gap in ops of actor %s: have %d, got %d: %w",
				op.Actor, next[op.Actor], op.Seq, ErrIncompatibleHistory)
		}
		next[op.Actor] = op.Seq
	}

	for _, op := range pending {
		if op.Seq <= d.head[op.Actor] {
			continue // уже применена
		}
		d.applyOp(op)
		d.hist = append(d.hist, op)
		d.head[op.Actor] = op.Seq
		d.clock.Update(op.Timestamp)
	}
	return nil
}

// Get returns the live value of a node field.
func (d *Doc) Get(nodeID, field string) (string, bool) {
	n, ok := d.nodes[nodeID]
	if !ok || n.Presence.Deleted {
		return "", false
	}
	reg, ok := n.Fields[field]
	if !ok || reg.Deleted {
		return "", false
	}
	return reg.Value, true
}

// Has reports whether a live (non-deleted) node exists.
func (d *Doc) Has(nodeID string) bool {
	n, ok := d.nodes[nodeID]
	return ok && !n.Presence.Deleted
}

// Fields returns a copy of the live fields of a node. Returns nil if the
// node does not exist or is deleted.
func (d *Doc) Fields(nodeID string) map[string]string {
	n, ok := d.nodes[nodeID]
	if !ok || n.Presence.Deleted {
		return nil
	}
	fields := make(map[string]string, len(n.Fields))
	for name, reg := range n.Fields {
		if !reg.Deleted {
			fields[name] = reg.Value
		}
	}
	return fields
}

// NodeIDs returns the ordering sequence of live node ids.
func (d *Doc) NodeIDs() []string {
	return append([]string(nil), d.order...)
}

// Snapshot returns the live document content as node id -> field -> value.
// Used for state summaries and final-state assertions.
func (d *Doc) Snapshot() map[string]map[string]string {
	snap := make(map[string]map[string]string, len(d.order))
	for _, id := range d.order {
		snap[id] = d.Fields(id)
	}
	return snap
}

// docState is the serialized form of a document.
type docState struct {
	Nodes map[string]*node `json:"nodes"`
	Head  Point            `json:"head"`
	Actor string           `json:"actor"`
	Order []string         `json:"order"`
	Hist  []Op             `json:"hist"`
	Clock int64            `json:"clock"`
}

// Marshal serializes the full document state, including its history.
func (d *Doc) Marshal() ([]byte, error) {
	return json.Marshal(docState{
		Actor: d.clock.ActorID(),
		Clock: d.clock.Timestamp(),
		Nodes: d.nodes,
		Order: d.order,
		Hist:  d.hist,
		Head:  d.head,
	})
}

// Unmarshal restores a document serialized with Marshal.
func Unmarshal(data []byte) (*Doc, error) {
	var state docState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	d := New(state.Actor)
	d.clock.SetTimestamp(state.Clock)
	if state.Nodes != nil {
		d.nodes = state.Nodes
	}
	d.order = state.Order
	d.hist = state.Hist
	if state.Head != nil {
		d.head = state.Head
	}
	return d, nil
}
