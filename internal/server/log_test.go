package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/pkg/api"
)

func newTestLog() *Log {
	return NewLog(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func commitReq(committer, key string, expected int64, paths ...string) api.CommitRequest {
	return api.CommitRequest{
		ExpectedVersion: expected,
		IdempotencyKey:  key,
		CommitterID:     committer,
		ChangeSet:       []byte(`{"ops":[]}`),
		TouchedPaths:    paths,
	}
}

func TestLog_MonotonicVersions(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		version, err := log.Commit(ctx, commitReq("replica-a", fmt.Sprintf("key-%d", i), i))
		require.NoError(t, err)
		assert.Equal(t, i+1, version, "Versions must increase strictly from 1")
		assert.Equal(t, version, log.Version())
	}

	entries, err := log.FetchSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Version, "entries[i].Version must equal i+1")
	}
}

func TestLog_IdempotentCommit(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	version, err := log.Commit(ctx, commitReq("replica-a", "key-1", 0, "nodeA.title"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Повтор с тем же ключом возвращает исходную версию без добавления,
	// даже если expected version уже устарела.
	replayed, err := log.Commit(ctx, commitReq("replica-a", "key-1", 0, "nodeA.title"))
	require.NoError(t, err)
	assert.Equal(t, version, replayed)
	assert.Equal(t, int64(1), log.Version(), "Log length must increase by at most one")
}

func TestLog_StaleRejection(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	_, err := log.Commit(ctx, commitReq("replica-a", "key-1", 0))
	require.NoError(t, err)

	_, err = log.Commit(ctx, commitReq("replica-b", "key-2", 0))
	require.Error(t, err)

	var stale *api.StaleVersionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, int64(1), stale.CurrentVersion)

	// Отказ не мутирует журнал.
	assert.Equal(t, int64(1), log.Version())
	entries, err := log.FetchSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Ключ отклоненного commit не должен считаться увиденным.
	version, err := log.Commit(ctx, commitReq("replica-b", "key-2", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestLog_FetchSince(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		_, err := log.Commit(ctx, commitReq("replica-a", fmt.Sprintf("key-%d", i), i))
		require.NoError(t, err)
	}

	tests := []struct {
		name         string
		since        int64
		wantVersions []int64
	}{
		{name: "from zero", since: 0, wantVersions: []int64{1, 2, 3}},
		{name: "from middle", since: 1, wantVersions: []int64{2, 3}},
		{name: "from tip", since: 3, wantVersions: nil},
		{name: "beyond tip", since: 10, wantVersions: nil},
		{name: "negative treated as zero", since: -2, wantVersions: []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := log.FetchSince(ctx, tt.since)
			require.NoError(t, err)

			versions := make([]int64, 0, len(entries))
			for _, entry := range entries {
				versions = append(versions, entry.Version)
			}
			if tt.wantVersions == nil {
				assert.Empty(t, versions)
			} else {
				assert.Equal(t, tt.wantVersions, versions)
			}
		})
	}
}

func TestLog_ConcurrentCommits(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	// Все реплики считают текущей версию 0: ровно одна должна победить.
	const replicas = 8

	var wg sync.WaitGroup
	errs := make([]error, replicas)
	for i := 0; i < replicas; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = log.Commit(ctx, commitReq(
				fmt.Sprintf("replica-%d", i),
				fmt.Sprintf("key-%d", i),
				0,
			))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		var stale *api.StaleVersionError
		require.ErrorAs(t, err, &stale)
	}
	assert.Equal(t, 1, accepted, "Exactly one commit may observe expected version 0 as valid")
	assert.Equal(t, int64(1), log.Version())
}

func TestLog_ContextCanceled(t *testing.T) {
	log := newTestLog()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := log.Commit(ctx, commitReq("replica-a", "key-1", 0))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = log.FetchSince(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(0), log.Version())
}
