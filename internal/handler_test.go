package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/14-signaling-hub/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandler_Health 測試健康檢查端點
func TestHandler_Health(t *testing.T) {
	manager := internal.NewManager(testLogger())
	handler := internal.NewHandler(manager, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotZero(t, body["time"])
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	manager := internal.NewManager(testLogger())
	handler := internal.NewHandler(manager, testLogger())

	manager.Connect("a@x", "c1", newFakeSink())
	manager.Connect("b@x", "c2", newFakeSink())
	require.NoError(t, manager.JoinRoom("a@x", "R1"))
	require.NoError(t, manager.JoinRoom("b@x", "R1"))
	_, err := manager.RegisterMachine("a@x", "dev1", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["total_clients"])
	assert.Equal(t, float64(1), body["total_rooms"])
	assert.Equal(t, float64(1), body["total_machines"])

	rooms, ok := body["rooms"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), rooms["R1"])
}

// TestHandler_MethodNotAllowed 測試方法限制
func TestHandler_MethodNotAllowed(t *testing.T) {
	manager := internal.NewManager(testLogger())
	handler := internal.NewHandler(manager, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
