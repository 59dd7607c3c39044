package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vigil-worker-go/internal/ingest"
)

// HealthDeps exposes the component health the handler reports on.
type HealthDeps interface {
	HealthStatus() map[string]ingest.SourceHealth
}

type HealthHandler struct {
	WorkerID  string
	manager   HealthDeps
	messaging interface{ IsConnected() bool }
	detector  interface{ IsHealthy() bool }
}

func NewHealthHandler(workerID string, manager HealthDeps, messaging interface{ IsConnected() bool }, detector interface{ IsHealthy() bool }) *HealthHandler {
	return &HealthHandler{
		WorkerID:  workerID,
		manager:   manager,
		messaging: messaging,
		detector:  detector,
	}
}

type HealthResponse struct {
	Status    string                         `json:"status"`
	WorkerID  string                         `json:"worker_id"`
	Messaging bool                           `json:"messaging_connected"`
	Detector  bool                           `json:"detector_healthy"`
	Sources   map[string]ingest.SourceHealth `json:"sources"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id"`
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HealthCheck reports worker and per-source health. The worker reports
// degraded, not unhealthy, while any source is down; stream recovery is
// automatic.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	sources := h.manager.HealthStatus()

	status := "healthy"
	if !h.messaging.IsConnected() || !h.detector.IsHealthy() {
		status = "degraded"
	}
	for _, s := range sources {
		if !s.Healthy {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		WorkerID:  h.WorkerID,
		Messaging: h.messaging.IsConnected(),
		Detector:  h.detector.IsHealthy(),
		Sources:   sources,
	})
}

// WorkerInfo returns basic worker identity and capabilities.
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  "1.0.0",
		Capabilities: []string{
			"rtsp_ingestion",
			"event_reasoning",
			"behavior_analysis",
		},
	})
}
