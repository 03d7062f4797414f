package demo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/client"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/netsim"
	"github.com/iudanet/docsync/internal/server"
)

// RunContention exercises the protocol under real goroutine interleaving:
// every replica concurrently edits its own node plus one shared, contended
// field, syncing after each edit through artificial latency. The commit
// loop must serialize everything through the version gate; after a final
// pull round all replicas must hold identical documents.
func RunContention(ctx context.Context, logger *slog.Logger, replicas, editsPerReplica int, seed int64) error {
	if replicas < 2 {
		return fmt.Errorf("contention run needs at least 2 replicas, got %d", replicas)
	}

	logger.Info("Running contention demo",
		"replicas", replicas,
		"edits_per_replica", editsPerReplica,
		"seed", seed)

	log := server.NewLog(logger)

	clients := make([]*client.Client, replicas)
	for i := range clients {
		ordering := netsim.Wrap(log, 0, 2*time.Millisecond, seed+int64(i))
		clients[i] = client.New(
			fmt.Sprintf("replica-%d", i),
			ordering,
			client.NewAllowOverwrite(),
			logger,
			// Ретраи не ограничиваем: каждая устаревшая попытка строго
			// продвигает версию, а объем работы конечен.
			client.WithMaxCommitAttempts(0),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		g.Go(func() error {
			own := fmt.Sprintf("node-%d", i)
			for j := 0; j < editsPerReplica; j++ {
				value := fmt.Sprintf("%s-edit-%d", c.ReplicaID(), j)
				c.Edit(func(tx *crdt.Tx) {
					tx.SetField(own, "value", value)
					tx.SetField("shared", "last_writer", c.ReplicaID())
				})
				if _, err := c.Sync(gctx); err != nil {
					return fmt.Errorf("replica %s: %w", c.ReplicaID(), err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Финальный pull: все реплики догоняют хвост журнала.
	for _, c := range clients {
		if _, err := c.Sync(ctx); err != nil {
			return fmt.Errorf("final pull of %s: %w", c.ReplicaID(), err)
		}
	}

	tip := log.Version()
	base := renderDocument(clients[0].Snapshot())
	for _, c := range clients[1:] {
		if c.LastAckedVersion() != tip {
			return fmt.Errorf("replica %s acked %d, server tip is %d", c.ReplicaID(), c.LastAckedVersion(), tip)
		}
		if rendered := renderDocument(c.Snapshot()); rendered != base {
			return fmt.Errorf("replica %s did not converge: %s != %s", c.ReplicaID(), rendered, base)
		}
	}

	logger.Info("Contention demo converged", "version", tip)
	return nil
}
