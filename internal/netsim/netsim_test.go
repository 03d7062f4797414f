package netsim

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/pkg/api"
)

func TestLatency_Passthrough(t *testing.T) {
	log := server.NewLog(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	wrapped := Wrap(log, 0, time.Millisecond, 42)
	ctx := context.Background()

	version, err := wrapped.Commit(ctx, api.CommitRequest{
		ExpectedVersion: 0,
		IdempotencyKey:  "key-1",
		CommitterID:     "replica-a",
		ChangeSet:       []byte(`{"ops":[]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	entries, err := wrapped.FetchSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Version)
}

func TestLatency_PropagatesErrors(t *testing.T) {
	log := server.NewLog(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	wrapped := Wrap(log, 0, 0, 1)
	ctx := context.Background()

	_, err := wrapped.Commit(ctx, api.CommitRequest{
		ExpectedVersion: 5,
		IdempotencyKey:  "key-1",
		CommitterID:     "replica-a",
	})

	var stale *api.StaleVersionError
	assert.ErrorAs(t, err, &stale, "Latency wrapper must not swallow typed errors")
}

func TestLatency_ContextCanceledDuringDelay(t *testing.T) {
	log := server.NewLog(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	wrapped := Wrap(log, time.Minute, time.Minute, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := wrapped.FetchSince(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
