package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsefold/cognition-core/pkg/models"
)

func TestHandleHealth_OK(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleProcessPacket_MissingPacketID_Rejected(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/process_packet", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProcessPacket_ValidPacket_RunsPipeline(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(s)

	packet := models.CognitionPacket{
		Header:  models.Header{PacketID: "pkt-1", SessionID: "sess-1", Origin: models.OriginUser, Version: "1"},
		Content: models.Content{OriginalPrompt: "hello there"},
	}
	payload, err := json.Marshal(packet)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/process_packet", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGPUWait_AlreadyAvailable_ReturnsImmediately(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/gpu/wait", bytes.NewBufferString(`{"timeout_seconds": 1}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["available"])
}

func TestApprovalsRoundTrip_ListDecideRemoves(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(s)

	require.NoError(t, s.Approvals.Enqueue(context.Background(), models.ApprovalRecord{
		Tool:      "run_shell",
		SessionID: "sess-1",
	}))

	listReq := httptest.NewRequest(http.MethodGet, "/approvals", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)

	assert.Equal(t, http.StatusOK, listRec.Code)
	var pending []models.ApprovalRecord
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)

	decideReq := httptest.NewRequest(http.MethodPost, "/approvals/decide", bytes.NewBufferString(
		`{"gate_key": "sess-1:run_shell", "approve": true}`))
	decideRec := httptest.NewRecorder()
	r.ServeHTTP(decideRec, decideReq)
	assert.Equal(t, http.StatusOK, decideRec.Code)

	assert.Empty(t, s.Approvals.List())
}

func TestHandleDecideApproval_UnknownKey_NotFound(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/approvals/decide", bytes.NewBufferString(
		`{"gate_key": "nope", "approve": true}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
