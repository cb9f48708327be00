package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basui01/reelscope/api"
)

func TestHealthHandler_AllCollaboratorsHealthy(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil, nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.GPUAvailable)
	assert.True(t, resp.QueueConnected)
	assert.True(t, resp.VLAvailable)
}

func TestHealthHandler_DegradedWhenACollaboratorFails(t *testing.T) {
	failing := NewFuncHealthCheck("vl", func(ctx context.Context) error { return errors.New("connection refused") })
	h := NewHealthHandler(nil, nil, failing, nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.VLAvailable)
	assert.True(t, resp.GPUAvailable)
}
