package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/pkg/api"
)

func TestFeed_DeliversCommittedEntries(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	ch, cancel := log.Subscribe()
	defer cancel()

	_, err := log.Commit(ctx, commitReq("replica-a", "key-1", 0, "nodeA.title"))
	require.NoError(t, err)
	_, err = log.Commit(ctx, commitReq("replica-b", "key-2", 1, "nodeB.color"))
	require.NoError(t, err)

	first := <-ch
	second := <-ch
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, "replica-b", second.CommitterID)
}

func TestFeed_CancelStopsDelivery(t *testing.T) {
	log := newTestLog()
	ctx := context.Background()

	ch, cancel := log.Subscribe()
	cancel()

	_, err := log.Commit(ctx, commitReq("replica-a", "key-1", 0))
	require.NoError(t, err)

	_, open := <-ch
	assert.False(t, open, "Канал должен быть закрыт после отмены подписки")

	// Повторная отмена безопасна.
	cancel()
}

func TestFeed_SlowSubscriberSkipped(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	// Переполняем буфер: лишние записи отбрасываются, publish не блокируется.
	for i := 0; i < feedBuffer+5; i++ {
		feed.publish(api.LogEntry{Version: int64(i + 1)})
	}

	assert.Len(t, ch, feedBuffer)
	entry := <-ch
	assert.Equal(t, int64(1), entry.Version, "Buffered entries keep log order")
}
