package diffusion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/observability"
)

func startCoordinator(t *testing.T) (*Coordinator, context.CancelFunc) {
	t.Helper()
	c := NewCoordinator(16, 64, observability.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, cancel
}

func TestCoordinator_InfillWithoutModelFailsModelNotLoaded(t *testing.T) {
	c, cancel := startCoordinator(t)
	defer cancel()

	_, err := c.Infill(context.Background(), InfillRequest{MaskCount: 4, StepsPerBlock: 2, BlockLength: 2})
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.ModelNotLoaded, e.Kind)
}

func TestCoordinator_LoadInfillUnloadLifecycle(t *testing.T) {
	c, cancel := startCoordinator(t)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, c.LoadModel(ctx, "/models/trado", "cpu"))

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.ModelLoaded)
	assert.Equal(t, "/models/trado", status.ModelPath)
	assert.Equal(t, "cpu", status.Device)

	_, progress := c.Subscribe(16)

	text, err := c.Infill(ctx, InfillRequest{
		Prefix: "A ", Suffix: " Z",
		MaskCount: 4, StepsPerBlock: 2, BlockLength: 2,
	})
	require.NoError(t, err)
	assert.Contains(t, text, "A ")
	assert.Contains(t, text, " Z")

	select {
	case p := <-progress:
		assert.Equal(t, 1, p.Step)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress update")
	}

	require.NoError(t, c.UnloadModel(ctx))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.ModelLoaded)
}

func TestCoordinator_InfillRejectsInvalidParameters(t *testing.T) {
	c, cancel := startCoordinator(t)
	defer cancel()
	ctx := context.Background()
	require.NoError(t, c.LoadModel(ctx, "/models/trado", "cpu"))

	_, err := c.Infill(ctx, InfillRequest{MaskCount: 0, StepsPerBlock: 1, BlockLength: 1})
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.InfillFailed, e.Kind)
}

// The Unavailable path: engine initialization failure drains pending
// commands with a clear error instead of hanging the caller.
func TestCoordinator_EngineInitFailureDrainsWithError(t *testing.T) {
	c := NewCoordinatorWithEngine(16, 64, observability.NewNoopLogger(), func() (Engine, error) {
		return nil, fmt.Errorf("no compatible device found")
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	err := c.LoadModel(ctx, "/models/trado", "cpu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")

	_, err = c.Infill(ctx, InfillRequest{MaskCount: 1, StepsPerBlock: 1, BlockLength: 1})
	require.Error(t, err)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.ModelLoaded)
}

func TestCoordinator_ShutdownStopsLoop(t *testing.T) {
	c, cancel := startCoordinator(t)
	defer cancel()
	require.NoError(t, c.Shutdown(context.Background()))
}
