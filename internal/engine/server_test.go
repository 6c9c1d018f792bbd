package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsefold/cognition-core/internal/modelpool"
	"github.com/synapsefold/cognition-core/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Dependencies{
		Pool:  modelpool.New(),
		Store: store.NewMemoryStore(),
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresPoolAndStore(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)

	_, err = New(Dependencies{Pool: modelpool.New()})
	assert.Error(t, err)

	_, err = New(Dependencies{Store: store.NewMemoryStore()})
	assert.Error(t, err)
}

func TestNew_BuildsUsableServer(t *testing.T) {
	s := newTestServer(t)
	assert.NotNil(t, s.Pipeline)
	assert.NotNil(t, s.SleepWake)
	assert.NotNil(t, s.Approvals)
	assert.False(t, s.Pool.GPUReleased())
}

func TestCheckpoint_PersistsBothRoles(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.Checkpoint(ctx, "prime is settling in for the night", "lite keeping watch"))

	prime, err := s.Store.ReadCheckpoint(ctx, "prime")
	require.NoError(t, err)
	assert.Equal(t, "prime is settling in for the night", prime.Narrative)

	lite, err := s.Store.ReadCheckpoint(ctx, "lite")
	require.NoError(t, err)
	assert.Equal(t, "lite keeping watch", lite.Narrative)
}

func TestGpuStatusFromPool_EmptyPoolReportsNotReleased(t *testing.T) {
	status := gpuStatusFromPool(modelpool.New())
	assert.False(t, status.GPUReleased)
	assert.Empty(t, status.GPUModelsLoaded)
}
