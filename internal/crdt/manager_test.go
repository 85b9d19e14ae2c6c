package crdt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptroom/storyengine/internal/observability"
)

func startManager(t *testing.T) (*Manager, context.CancelFunc) {
	t.Helper()
	m, err := NewManager(256, 256, 512, observability.NewNoopLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, cancel
}

// Scenario D (the CRDT half, independent of the WebSocket transport):
// applying client A's update broadcasts it tagged with origin "A", and a
// second subscriber (standing in for client B) receives it.
func TestManager_BroadcastsTaggedWithOrigin(t *testing.T) {
	m, cancel := startManager(t)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, m.EnsureNode(ctx, "N"))

	_, subB := m.Subscribe(8)

	writer := NewDoc()
	writer.EnsureNode("N")
	writer.WriteNodeContent("N", FieldContent, "hi", "human:A")
	data, err := EncodeBytes(writer.Encode(StateVector{}))
	require.NoError(t, err)

	require.NoError(t, m.ApplyUpdate(ctx, "A", data))

	select {
	case u := <-subB:
		assert.Equal(t, "A", u.OriginClient)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}

	snap, err := m.ReadNodeContent(ctx, "N")
	require.NoError(t, err)
	assert.Contains(t, snap.Content, "hi")
}

func TestManager_ApplyUpdateEmitsChangeNotification(t *testing.T) {
	m, cancel := startManager(t)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, m.EnsureNode(ctx, "N"))

	writer := NewDoc()
	writer.EnsureNode("N")
	writer.WriteNodeContent("N", FieldContent, "hello", "human:9")
	data, err := EncodeBytes(writer.Encode(StateVector{}))
	require.NoError(t, err)

	require.NoError(t, m.ApplyUpdate(ctx, "9", data))

	select {
	case n := <-m.Changes():
		assert.Equal(t, "N", n.NodeID)
		assert.Equal(t, FieldContent, n.Field)
		assert.Equal(t, "human:9", n.Author)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestManager_SerializeThenLoadRoundTrips(t *testing.T) {
	m, cancel := startManager(t)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, m.EnsureNode(ctx, "N"))
	require.NoError(t, m.WriteNodeContent(ctx, "N", FieldContent, "persisted", "human:1"))

	data, err := m.Serialize(ctx)
	require.NoError(t, err)

	m2, cancel2 := startManager(t)
	defer cancel2()
	require.NoError(t, m2.Load(ctx, data))

	snap, err := m2.ReadNodeContent(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, "persisted", snap.Content)
}

func TestManager_ShutdownStopsLoop(t *testing.T) {
	m, cancel := startManager(t)
	defer cancel()

	require.NoError(t, m.Shutdown(context.Background()))
}
