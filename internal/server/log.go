package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iudanet/docsync/pkg/api"
)

// Log is the ordering authority: an append-only, monotonically-versioned
// log of committed change-sets. The check-and-append commit path is the
// single mutual-exclusion point of the whole system; it is serialized by
// one mutex so that no two commits can observe the same expected version
// as valid.
type Log struct {
	logger  *slog.Logger
	seen    map[string]int64 // idempotency key -> originally assigned version
	feed    *Feed
	entries []api.LogEntry
	mu      sync.Mutex
}

// NewLog creates an empty ordering log at version 0.
func NewLog(logger *slog.Logger) *Log {
	return &Log{
		logger: logger,
		seen:   make(map[string]int64),
		feed:   NewFeed(),
	}
}

// Version returns the version of the last committed entry (0 for an empty log).
func (l *Log) Version() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return int64(len(l.entries))
}

// FetchSince returns all entries with version greater than the given one,
// in ascending version order. Pure read, no side effects.
func (l *Log) FetchSince(ctx context.Context, version int64) ([]api.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if version >= int64(len(l.entries)) {
		return nil, nil
	}
	if version < 0 {
		version = 0
	}

	// entries[i].Version == i+1, поэтому записи после version начинаются с индекса version.
	result := make([]api.LogEntry, int64(len(l.entries))-version)
	copy(result, l.entries[version:])
	return result, nil
}

// Commit appends a change-set if the caller's expected version still matches
// the log tip.
//
// Retried commits are deduplicated by idempotency key: a key seen before
// returns the version it was originally assigned without re-appending
// (exactly-once semantics under response loss). A mismatched expected
// version fails with *api.StaleVersionError and performs no mutation.
func (l *Log) Commit(ctx context.Context, req api.CommitRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if version, ok := l.seen[req.IdempotencyKey]; ok {
		l.logger.Debug("Replayed commit deduplicated",
			"committer_id", req.CommitterID,
			"idempotency_key", req.IdempotencyKey,
			"version", version)
		return version, nil
	}

	currentVersion := int64(len(l.entries))
	if req.ExpectedVersion != currentVersion {
		l.logger.Info("Commit rejected as stale",
			"committer_id", req.CommitterID,
			"expected_version", req.ExpectedVersion,
			"current_version", currentVersion)
		return 0, &api.StaleVersionError{CurrentVersion: currentVersion}
	}

	entry := api.LogEntry{
		Version:        currentVersion + 1,
		CommitterID:    req.CommitterID,
		IdempotencyKey: req.IdempotencyKey,
		ChangeSet:      req.ChangeSet,
		TouchedPaths:   append([]string(nil), req.TouchedPaths...),
	}
	l.entries = append(l.entries, entry)
	l.seen[req.IdempotencyKey] = entry.Version

	// Публикация под мьютексом сохраняет порядок журнала в feed;
	// отправка неблокирующая, так что commit не ждет подписчиков.
	l.feed.publish(entry)

	l.logger.Info("Commit accepted",
		"committer_id", req.CommitterID,
		"version", entry.Version,
		"touched_paths", entry.TouchedPaths)

	return entry.Version, nil
}

// Subscribe registers a push-based subscriber for committed entries.
// Push delivery is an optimization: slow subscribers may miss entries and
// must fall back to FetchSince, which is always sufficient to converge.
// The returned cancel func releases the subscription.
func (l *Log) Subscribe() (<-chan api.LogEntry, func()) {
	return l.feed.Subscribe()
}
