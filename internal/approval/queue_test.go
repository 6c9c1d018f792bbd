package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsefold/cognition-core/pkg/models"
)

func TestEnqueue_DefaultsGateKeyAndStatus(t *testing.T) {
	q := New()
	err := q.Enqueue(context.Background(), models.ApprovalRecord{
		Tool:      "run_shell",
		SessionID: "sess-1",
	})
	require.NoError(t, err)

	pending := q.List()
	require.Len(t, pending, 1)
	assert.Equal(t, "sess-1:run_shell", pending[0].GateKey)
	assert.Equal(t, "waiting", pending[0].Status)
}

func TestEnqueue_DuplicateGateKeyRefreshesInPlace(t *testing.T) {
	q := New()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, models.ApprovalRecord{Tool: "write_file", SessionID: "sess-1", Reason: "first"}))
	require.NoError(t, q.Enqueue(ctx, models.ApprovalRecord{Tool: "write_file", SessionID: "sess-1", Reason: "second"}))

	pending := q.List()
	require.Len(t, pending, 1)
	assert.Equal(t, "second", pending[0].Reason)
}

func TestList_OmitsDecidedRecords(t *testing.T) {
	q := New()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, models.ApprovalRecord{Tool: "run_shell", SessionID: "sess-1"}))
	require.NoError(t, q.Enqueue(ctx, models.ApprovalRecord{Tool: "write_file", SessionID: "sess-2"}))

	assert.True(t, q.Decide("sess-1:run_shell", true))
	pending := q.List()
	require.Len(t, pending, 1)
	assert.Equal(t, "sess-2:write_file", pending[0].GateKey)
}

func TestDecide_UnknownKeyReturnsFalse(t *testing.T) {
	q := New()
	assert.False(t, q.Decide("nope", true))
}

func TestDecide_RejectSetsStatus(t *testing.T) {
	q := New()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, models.ApprovalRecord{Tool: "run_shell", SessionID: "sess-1"}))
	require.True(t, q.Decide("sess-1:run_shell", false))

	// a rejected record is no longer "waiting" so List no longer surfaces it
	assert.Empty(t, q.List())
}
