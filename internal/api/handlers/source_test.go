package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-worker-go/internal/ingest"
	"vigil-worker-go/internal/services/pipeline"
)

type fakeManager struct {
	sources map[string]string
	healthy bool
}

func newFakeManager() *fakeManager {
	return &fakeManager{sources: map[string]string{}, healthy: true}
}

func (f *fakeManager) AddSource(id, url string) error {
	if _, ok := f.sources[id]; ok {
		return fmt.Errorf("source %s already registered", id)
	}
	f.sources[id] = url
	return nil
}

func (f *fakeManager) RemoveSource(id string) error {
	if _, ok := f.sources[id]; !ok {
		return fmt.Errorf("source %s not found", id)
	}
	delete(f.sources, id)
	return nil
}

func (f *fakeManager) SourceIDs() []string {
	ids := make([]string, 0, len(f.sources))
	for id := range f.sources {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeManager) StreamStats() map[string]ingest.Stats {
	stats := make(map[string]ingest.Stats, len(f.sources))
	for id := range f.sources {
		stats[id] = ingest.Stats{Connected: f.healthy, Healthy: f.healthy}
	}
	return stats
}

func (f *fakeManager) PipelineStats() map[string]pipeline.Stats {
	stats := make(map[string]pipeline.Stats, len(f.sources))
	for id := range f.sources {
		stats[id] = pipeline.Stats{FramesProcessed: 42}
	}
	return stats
}

func (f *fakeManager) HealthStatus() map[string]ingest.SourceHealth {
	status := make(map[string]ingest.SourceHealth, len(f.sources))
	for id := range f.sources {
		status[id] = ingest.SourceHealth{Connected: f.healthy, Healthy: f.healthy}
	}
	return status
}

func sourceRouter(m *fakeManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSourceHandler(m)
	r := gin.New()
	r.GET("/sources", h.ListSources)
	r.POST("/sources", h.AddSource)
	r.DELETE("/sources/:id", h.RemoveSource)
	r.GET("/sources/:id/stats", h.SourceStats)
	return r
}

func TestAddAndListSources(t *testing.T) {
	m := newFakeManager()
	r := sourceRouter(m)

	w := httptest.NewRecorder()
	body := `{"id": "cam-1", "url": "rtsp://example/stream"}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(body)))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "rtsp://example/stream", m.sources["cam-1"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sources", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"cam-1"}, resp.Sources)
}

func TestAddSourceValidation(t *testing.T) {
	r := sourceRouter(newFakeManager())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{"id": "cam-1"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddSourceDuplicateConflicts(t *testing.T) {
	m := newFakeManager()
	m.sources["cam-1"] = "rtsp://example"
	r := sourceRouter(m)

	w := httptest.NewRecorder()
	body := `{"id": "cam-1", "url": "rtsp://other"}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRemoveSource(t *testing.T) {
	m := newFakeManager()
	m.sources["cam-1"] = "rtsp://example"
	r := sourceRouter(m)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sources/cam-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, m.sources)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sources/cam-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSourceStats(t *testing.T) {
	m := newFakeManager()
	m.sources["cam-1"] = "rtsp://example"
	r := sourceRouter(m)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sources/cam-1/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID       string         `json:"id"`
		Pipeline pipeline.Stats `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cam-1", resp.ID)
	assert.Equal(t, int64(42), resp.Pipeline.FramesProcessed)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sources/nope/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeConn struct{ connected bool }

func (f fakeConn) IsConnected() bool { return f.connected }

type fakeDetectorHealth struct{ healthy bool }

func (f fakeDetectorHealth) IsHealthy() bool { return f.healthy }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		messaging bool
		detector  bool
		streams   bool
		want      string
	}{
		{"all healthy", true, true, true, "healthy"},
		{"messaging down", false, true, true, "degraded"},
		{"detector down", true, false, true, "degraded"},
		{"stream down", true, true, false, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			m := newFakeManager()
			m.sources["cam-1"] = "rtsp://example"
			m.healthy = tt.streams

			h := NewHealthHandler("worker-1", m, fakeConn{tt.messaging}, fakeDetectorHealth{tt.detector})
			r := gin.New()
			r.GET("/health", h.HealthCheck)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, "worker-1", resp.WorkerID)
		})
	}
}
