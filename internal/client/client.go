package client

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/pkg/api"
)

// Ordering is the server contract the client depends on: pull committed
// entries after a version, and commit a change-set gated on an expected
// version. The in-memory server implements it directly; netsim wraps it
// with artificial latency.
type Ordering interface {
	// FetchSince возвращает все записи журнала с версией больше version.
	FetchSince(ctx context.Context, version int64) ([]api.LogEntry, error)

	// Commit фиксирует change-set, если ожидаемая версия совпадает с
	// текущей версией журнала. При несовпадении возвращает
	// *api.StaleVersionError.
	Commit(ctx context.Context, req api.CommitRequest) (int64, error)
}

// defaultMaxCommitAttempts bounds the StaleRetry loop. The protocol itself
// guarantees termination only if contention is bounded, so the client gives
// up after this many commit attempts per cycle rather than risk livelock.
const defaultMaxCommitAttempts = 10

// undoFrame is one snapshot on the undo stack: the full local replica plus
// the touched-path set as of the moment before an edit.
type undoFrame struct {
	doc     *crdt.Doc
	touched map[string]struct{}
}

// Client owns one replica of the shared document and runs the
// pull -> reconcile -> commit -> retry synchronization loop against the
// ordering server.
//
// The client keeps two replicas: local (mutable, receives edits) and
// shadow (the last state acknowledged by the server). Under normal
// operation the shadow's history is always a causal ancestor of the
// local history; Undo can break that, which the next Sync surfaces as
// ErrDiverged (see Resync).
//
// Client is a single logical thread of control and is not safe for
// concurrent use.
type Client struct {
	server     Ordering
	policy     Policy
	logger     *slog.Logger
	local      *crdt.Doc
	shadow     *crdt.Doc
	touched    map[string]struct{}
	newBackOff func() backoff.BackOff
	replicaID  string
	undo       []undoFrame
	lastAcked  int64
	maxCommits int
	online     bool
}

// Option configures a Client.
type Option func(*Client)

// WithMaxCommitAttempts sets the bound on commit attempts per sync cycle.
// n <= 0 removes the bound entirely.
func WithMaxCommitAttempts(n int) Option {
	return func(c *Client) {
		c.maxCommits = n
	}
}

// WithBackOff sets the factory for the backoff policy used between stale
// commit retries. Tests use a zero-interval backoff.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = fn
	}
}

// WithOffline starts the client in the offline state.
func WithOffline() Option {
	return func(c *Client) {
		c.online = false
	}
}

// New creates a client with empty replicas at lastAckedVersion 0.
func New(replicaID string, server Ordering, policy Policy, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		replicaID:  replicaID,
		server:     server,
		policy:     policy,
		logger:     logger,
		local:      crdt.New(replicaID),
		shadow:     crdt.New(replicaID),
		touched:    make(map[string]struct{}),
		online:     true,
		maxCommits: defaultMaxCommitAttempts,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0 // попытки ограничены maxCommits, не временем
	return bo
}

// ReplicaID returns the id of this replica.
func (c *Client) ReplicaID() string {
	return c.replicaID
}

// LastAckedVersion returns the highest server version this replica has
// observed or committed.
func (c *Client) LastAckedVersion() int64 {
	return c.lastAcked
}

// Online reports the connectivity state.
func (c *Client) Online() bool {
	return c.online
}

// SetOnline toggles connectivity. Going offline does not lose state; the
// next Sync after coming back online pulls everything missed.
func (c *Client) SetOnline(online bool) {
	c.online = online
	c.logger.Info("Connectivity changed", "replica_id", c.replicaID, "online", online)
}

// Edit applies a local mutation through the document engine, pushing an
// undo snapshot first and recording the touched paths of the edit.
func (c *Client) Edit(fn func(*crdt.Tx)) {
	c.undo = append(c.undo, undoFrame{
		doc:     c.local.Clone(),
		touched: cloneSet(c.touched),
	})

	before := c.local.Head()
	c.local.Update(fn)

	paths, err := c.local.TouchedSince(before)
	if err != nil {
		// before - это голова той же реплики на момент входа, предок по построению.
		c.logger.Warn("Failed to compute touched paths of local edit", "error", err)
		return
	}
	for _, p := range paths {
		c.touched[p] = struct{}{}
	}

	c.logger.Debug("Local edit recorded",
		"replica_id", c.replicaID,
		"paths", paths)
}

// Undo reverts the most recent Edit by wholesale snapshot restore. This is
// not a merge: if a pulled server commit landed after the snapshot was
// taken, the restored local replica no longer descends from the shadow and
// the next Sync fails with ErrDiverged, recoverable through Resync.
// Returns false if there is nothing to undo.
func (c *Client) Undo() bool {
	if len(c.undo) == 0 {
		return false
	}

	frame := c.undo[len(c.undo)-1]
	c.undo = c.undo[:len(c.undo)-1]
	c.local = frame.doc
	c.touched = frame.touched

	c.logger.Info("Undo applied", "replica_id", c.replicaID)
	return true
}

// Get returns the live value of a node field of the local replica.
func (c *Client) Get(nodeID, field string) (string, bool) {
	return c.local.Get(nodeID, field)
}

// Snapshot returns the live content of the local replica.
func (c *Client) Snapshot() map[string]map[string]string {
	return c.local.Snapshot()
}

// TouchedPaths returns the sorted paths touched since the last successful
// commit.
func (c *Client) TouchedPaths() []string {
	return sortedSet(c.touched)
}

func cloneSet(set map[string]struct{}) map[string]struct{} {
	c := make(map[string]struct{}, len(set))
	for k := range set {
		c[k] = struct{}{}
	}
	return c
}

func sortedSet(set map[string]struct{}) []string {
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// sleepCtx waits for the given duration or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
