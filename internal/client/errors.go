package client

import "errors"

// Client errors
var (
	// ErrDiverged indicates that the local replica's history no longer
	// descends from the server-acknowledged shadow state (e.g. after an
	// Undo past a pulled commit). The sync cycle is aborted; retrying
	// without resolving the divergence would fail identically. Recover
	// with Resync.
	ErrDiverged = errors.New("local replica diverged from acknowledged state")

	// ErrRetriesExhausted indicates that the bounded StaleRetry loop gave
	// up under sustained commit contention. Local state is intact; a later
	// Sync may succeed.
	ErrRetriesExhausted = errors.New("commit retries exhausted")

	// ErrOffline is returned by operations that cannot proceed without
	// connectivity (Resync). The plain sync cycle treats offline as a
	// no-op guard instead, not an error.
	ErrOffline = errors.New("replica is offline")
)
