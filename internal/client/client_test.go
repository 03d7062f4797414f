package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/server"
)

func TestNew(t *testing.T) {
	log := server.NewLog(newTestLogger())
	c := newTestClient("replica-a", log, NewAllowOverwrite())

	require.NotNil(t, c)
	assert.Equal(t, "replica-a", c.ReplicaID())
	assert.Equal(t, int64(0), c.LastAckedVersion())
	assert.True(t, c.Online())
	assert.Empty(t, c.TouchedPaths())
	assert.Empty(t, c.Snapshot())
}

func TestClient_EditRecordsTouchedPaths(t *testing.T) {
	log := server.NewLog(newTestLogger())
	c := newTestClient("replica-a", log, NewAllowOverwrite())

	c.Edit(func(tx *crdt.Tx) {
		tx.PutNode("nodeA", map[string]string{"title": "Settings", "color": "blue"})
	})
	c.Edit(func(tx *crdt.Tx) {
		tx.SetField("nodeA", "title", "Settings v2")
	})

	assert.Equal(t, []string{"nodeA", "nodeA.color", "nodeA.title"}, c.TouchedPaths())

	title, ok := c.Get("nodeA", "title")
	require.True(t, ok)
	assert.Equal(t, "Settings v2", title)
}

func TestClient_UndoRestoresSnapshot(t *testing.T) {
	log := server.NewLog(newTestLogger())
	c := newTestClient("replica-a", log, NewAllowOverwrite())

	c.Edit(func(tx *crdt.Tx) {
		tx.PutNode("nodeA", map[string]string{"title": "Settings"})
	})
	c.Edit(func(tx *crdt.Tx) {
		tx.SetField("nodeA", "title", "Settings v2")
	})

	require.True(t, c.Undo())

	title, _ := c.Get("nodeA", "title")
	assert.Equal(t, "Settings", title)
	assert.Equal(t, []string{"nodeA", "nodeA.title"}, c.TouchedPaths(),
		"Touched paths must be restored together with the document snapshot")

	require.True(t, c.Undo())
	assert.Empty(t, c.Snapshot())
	assert.Empty(t, c.TouchedPaths())

	assert.False(t, c.Undo(), "Undo on empty stack is a no-op")
}

func TestClient_SetOnline(t *testing.T) {
	log := server.NewLog(newTestLogger())
	c := newTestClient("replica-a", log, NewAllowOverwrite(), WithOffline())

	assert.False(t, c.Online())
	c.SetOnline(true)
	assert.True(t, c.Online())
}
