package trainservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPUReadyThenRelease_TransitionsState(t *testing.T) {
	s := New(0)
	r := NewRouter(s, nil)

	assert.Equal(t, StateIdle, s.State())

	req := httptest.NewRequest(http.MethodPost, "/study/gpu-ready", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateTraining, s.State())

	req2 := httptest.NewRequest(http.MethodPost, "/study/gpu-release", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, StateIdle, s.State())
}

func TestGPURelease_RespectsContextCancellation(t *testing.T) {
	s := New(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.GPURelease(ctx)
	assert.Error(t, err)
}

func TestHandleHealth_OK(t *testing.T) {
	s := New(0)
	r := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}
