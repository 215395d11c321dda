package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/logging"
)

// mockHealthAPI is a mock implementation of HealthAPI for testing
type mockHealthAPI struct {
	healthResponse    *HealthResponse
	detailedResponse  *DetailedHealthResponse
	readinessResponse *ReadinessResponse
	livenessResponse  *LivenessResponse
	healthError       error
	detailedError     error
	readinessError    error
	livenessError     error
}

func (m *mockHealthAPI) GetHealth(ctx context.Context) (*HealthResponse, error) {
	return m.healthResponse, m.healthError
}

func (m *mockHealthAPI) GetDetailedHealth(ctx context.Context) (*DetailedHealthResponse, error) {
	return m.detailedResponse, m.detailedError
}

func (m *mockHealthAPI) IsReady(ctx context.Context) (*ReadinessResponse, error) {
	return m.readinessResponse, m.readinessError
}

func (m *mockHealthAPI) IsAlive(ctx context.Context) (*LivenessResponse, error) {
	return m.livenessResponse, m.livenessError
}

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{Host: "127.0.0.1", Port: 8003}
}

func TestNewHTTPHealthServer(t *testing.T) {
	logger := logging.GetLogger("test")

	t.Run("valid config", func(t *testing.T) {
		server, err := NewHTTPHealthServer(testHealthConfig(), &mockHealthAPI{}, logger)
		require.NoError(t, err)
		require.NotNil(t, server)
		assert.Equal(t, "127.0.0.1:8003", server.server.Addr)
	})

	t.Run("nil health API rejected", func(t *testing.T) {
		server, err := NewHTTPHealthServer(testHealthConfig(), nil, logger)
		assert.Error(t, err)
		assert.Nil(t, server)
	})

	t.Run("nil logger rejected", func(t *testing.T) {
		server, err := NewHTTPHealthServer(testHealthConfig(), &mockHealthAPI{}, nil)
		assert.Error(t, err)
		assert.Nil(t, server)
	})
}

func TestHTTPHealthServer_handleBasicHealth(t *testing.T) {
	logger := logging.GetLogger("test")

	tests := []struct {
		name           string
		mockResponse   *HealthResponse
		mockError      error
		expectedStatus int
		expectedBody   map[string]interface{}
	}{
		{
			name: "successful health check",
			mockResponse: &HealthResponse{
				Status:    HealthStatusHealthy,
				Timestamp: time.Now(),
				Version:   "1.0.0",
				Uptime:    "1h30m",
			},
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"status": "healthy", "version": "1.0.0", "uptime": "1h30m"},
		},
		{
			name:           "health API error",
			mockError:      assert.AnError,
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]interface{}{"error": "Internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := &mockHealthAPI{healthResponse: tt.mockResponse, healthError: tt.mockError}
			server, err := NewHTTPHealthServer(testHealthConfig(), mockAPI, logger)
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			server.handleBasicHealth(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			for key, expected := range tt.expectedBody {
				assert.Equal(t, expected, response[key])
			}
		})
	}
}

func TestHTTPHealthServer_handleReadiness(t *testing.T) {
	logger := logging.GetLogger("test")

	tests := []struct {
		name           string
		ready          bool
		expectedStatus int
	}{
		{name: "ready", ready: true, expectedStatus: http.StatusOK},
		{name: "not ready", ready: false, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := &mockHealthAPI{readinessResponse: &ReadinessResponse{Ready: tt.ready, Timestamp: time.Now()}}
			server, err := NewHTTPHealthServer(testHealthConfig(), mockAPI, logger)
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/health/ready", nil)
			w := httptest.NewRecorder()
			server.handleReadiness(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHTTPHealthServer_handleLiveness(t *testing.T) {
	logger := logging.GetLogger("test")
	mockAPI := &mockHealthAPI{livenessResponse: &LivenessResponse{Alive: true, Timestamp: time.Now()}}
	server, err := NewHTTPHealthServer(testHealthConfig(), mockAPI, logger)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/health/live", nil)
	w := httptest.NewRecorder()
	server.handleLiveness(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPHealthServer_handleDetailedHealth(t *testing.T) {
	logger := logging.GetLogger("test")
	mockAPI := &mockHealthAPI{
		detailedResponse: &DetailedHealthResponse{
			Status:     HealthStatusDegraded,
			Timestamp:  time.Now(),
			Version:    "1.0.0",
			Components: []ComponentStatus{{Name: "discovery", Status: HealthStatusHealthy}},
			Metrics:    map[string]interface{}{"uptime_seconds": 42.0},
		},
	}
	server, err := NewHTTPHealthServer(testHealthConfig(), mockAPI, logger)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/health/detailed", nil)
	w := httptest.NewRecorder()
	server.handleDetailedHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response DetailedHealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, HealthStatusDegraded, response.Status)
	require.Len(t, response.Components, 1)
	assert.Equal(t, "discovery", response.Components[0].Name)
}

func TestHTTPHealthServer_StartStop(t *testing.T) {
	logger := logging.GetLogger("test")
	mockAPI := &mockHealthAPI{healthResponse: &HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now()}}
	server, err := NewHTTPHealthServer(testHealthConfig(), mockAPI, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}
