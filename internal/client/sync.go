package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/pkg/api"
)

// SyncResult contains the counters of one sync cycle.
type SyncResult struct {
	RevertedPaths    []string // пути, откаченные политикой strict first-wins
	PulledEntries    int      // количество примененных записей журнала
	CommitAttempts   int      // количество попыток commit (включая устаревшие)
	CommittedVersion int64    // версия, назначенная сервером (0 если commit не было)
	Committed        bool     // был ли зафиксирован change-set
	Skipped          bool     // цикл пропущен, реплика offline
}

// Sync runs one synchronization cycle:
//
//	Idle -> Pulling -> Reconciling -> Committing -> (StaleRetry -> Pulling) | Idle
//
// Offline is a no-op guard, not an error. A stale commit is recovered
// internally: the cycle pulls the entries that beat it, reconciles,
// recomputes the pending diff and retries with backoff. Every retry
// strictly advances lastAckedVersion, so the loop terminates as long as
// contention from other replicas is bounded; the attempt bound converts
// pathological livelock into ErrRetriesExhausted. History divergence
// surfaces as ErrDiverged and is never retried blindly.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}

	if !c.online {
		c.logger.Info("Sync skipped: replica offline", "replica_id", c.replicaID)
		result.Skipped = true
		return result, nil
	}

	c.logger.Info("Starting sync cycle",
		"replica_id", c.replicaID,
		"last_acked_version", c.lastAcked,
		"policy", c.policy.Name())

	bo := c.newBackOff()

	for {
		if err := c.pull(ctx, result); err != nil {
			return nil, err
		}

		pending, err := c.local.ChangesSince(c.shadow.Head())
		if err != nil {
			// Тень больше не предок локальной истории: расхождение.
			c.logger.Error("Shadow is not an ancestor of local replica",
				"replica_id", c.replicaID,
				"error", err)
			return nil, fmt.Errorf("compute pending changes: %w", ErrDiverged)
		}

		if pending.Empty() {
			c.logger.Info("Sync cycle completed: nothing to commit",
				"replica_id", c.replicaID,
				"last_acked_version", c.lastAcked,
				"pulled", result.PulledEntries)
			return result, nil
		}

		payload, err := pending.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal change-set: %w", err)
		}

		// Свежий ключ на каждую попытку: реконсиляция между попытками
		// может изменить pending, так что это другой запрос.
		req := api.CommitRequest{
			ExpectedVersion: c.lastAcked,
			IdempotencyKey:  uuid.New().String(),
			CommitterID:     c.replicaID,
			ChangeSet:       payload,
			TouchedPaths:    sortedSet(c.touched),
		}

		result.CommitAttempts++
		version, err := c.server.Commit(ctx, req)
		if err != nil {
			var stale *api.StaleVersionError
			if !errors.As(err, &stale) {
				return nil, fmt.Errorf("commit failed: %w", err)
			}

			c.logger.Info("Commit lost the race, retrying",
				"replica_id", c.replicaID,
				"expected_version", req.ExpectedVersion,
				"current_version", stale.CurrentVersion,
				"attempt", result.CommitAttempts)

			if c.maxCommits > 0 && result.CommitAttempts >= c.maxCommits {
				return nil, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, result.CommitAttempts)
			}

			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return nil, fmt.Errorf("%w: backoff stopped after %d attempts", ErrRetriesExhausted, result.CommitAttempts)
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		// Успех: локальное состояние становится подтвержденным.
		c.lastAcked = version
		c.shadow = c.local.Clone()
		c.touched = make(map[string]struct{})

		result.Committed = true
		result.CommittedVersion = version

		c.logger.Info("Sync cycle completed: committed",
			"replica_id", c.replicaID,
			"version", version,
			"pulled", result.PulledEntries,
			"attempts", result.CommitAttempts)
		return result, nil
	}
}

// pull fetches the log entries this replica has not seen, applies their
// combined change-set to fresh copies of both replicas and runs the
// conflict policy against the union of the entries' touched paths.
func (c *Client) pull(ctx context.Context, result *SyncResult) error {
	entries, err := c.server.FetchSince(ctx, c.lastAcked)
	if err != nil {
		return fmt.Errorf("fetch since version %d: %w", c.lastAcked, err)
	}
	if len(entries) == 0 {
		return nil
	}

	combined := crdt.ChangeSet{}
	remoteTouched := make(map[string]struct{})
	for _, entry := range entries {
		cs, err := crdt.UnmarshalChangeSet(entry.ChangeSet)
		if err != nil {
			return fmt.Errorf("failed to unmarshal change-set of version %d: %w", entry.Version, err)
		}
		combined = combined.Merge(cs)
		for _, p := range entry.TouchedPaths {
			remoteTouched[p] = struct{}{}
		}
	}

	// Применяем к свежим копиям: при ошибке ни одна реплика не мутирована.
	newShadow := c.shadow.Clone()
	if err := newShadow.ApplyRemote(combined); err != nil {
		return fmt.Errorf("apply entries to shadow replica (%v): %w", err, ErrDiverged)
	}
	newLocal := c.local.Clone()
	if err := newLocal.ApplyRemote(combined); err != nil {
		// Локальная реплика не содержит предысторию записей журнала:
		// например, после Undo за пределы последнего pull.
		return fmt.Errorf("apply entries to local replica (%v): %w", err, ErrDiverged)
	}

	c.shadow = newShadow
	c.local = newLocal
	c.lastAcked = entries[len(entries)-1].Version
	result.PulledEntries += len(entries)

	c.logger.Info("Pulled log entries",
		"replica_id", c.replicaID,
		"entries", len(entries),
		"last_acked_version", c.lastAcked,
		"remote_touched", sortedSet(remoteTouched))

	if len(remoteTouched) == 0 {
		return nil
	}

	revised, reverted := c.policy.Reconcile(c.local, c.shadow, c.touched, remoteTouched)
	c.touched = revised
	if len(reverted) > 0 {
		result.RevertedPaths = append(result.RevertedPaths, reverted...)
		c.logger.Info("Conflicting local edits reverted",
			"replica_id", c.replicaID,
			"policy", c.policy.Name(),
			"paths", reverted)
	}
	return nil
}

// Resync is the divergence escape hatch: it refetches the log from version
// 0 and rebuilds both replicas by replay. Uncommitted local edits, touched
// paths and the undo stack are discarded.
func (c *Client) Resync(ctx context.Context) error {
	if !c.online {
		return ErrOffline
	}

	c.logger.Warn("Full resync: rebuilding replicas from the log", "replica_id", c.replicaID)

	entries, err := c.server.FetchSince(ctx, 0)
	if err != nil {
		return fmt.Errorf("fetch full log: %w", err)
	}

	combined := crdt.ChangeSet{}
	for _, entry := range entries {
		cs, err := crdt.UnmarshalChangeSet(entry.ChangeSet)
		if err != nil {
			return fmt.Errorf("failed to unmarshal change-set of version %d: %w", entry.Version, err)
		}
		combined = combined.Merge(cs)
	}

	fresh := crdt.New(c.replicaID)
	if err := fresh.ApplyRemote(combined); err != nil {
		return fmt.Errorf("replay full log: %w", err)
	}

	c.local = fresh
	c.shadow = fresh.Clone()
	c.lastAcked = 0
	if len(entries) > 0 {
		c.lastAcked = entries[len(entries)-1].Version
	}
	c.touched = make(map[string]struct{})
	c.undo = nil

	c.logger.Info("Resync completed",
		"replica_id", c.replicaID,
		"last_acked_version", c.lastAcked)
	return nil
}
