package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"vigil-worker-go/internal/ingest"
	"vigil-worker-go/internal/services/pipeline"
)

// StatsProvider supplies per-source counters for the stats endpoint.
type StatsProvider interface {
	StreamStats() map[string]ingest.Stats
	PipelineStats() map[string]pipeline.Stats
}

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID string
	started  time.Time
	stats    StatsProvider
	detector interface{ UnavailableCount() int64 }
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(workerID string, stats StatsProvider, detector interface{ UnavailableCount() int64 }) *SystemHandler {
	return &SystemHandler{
		WorkerID: workerID,
		started:  time.Now(),
		stats:    stats,
		detector: detector,
	}
}

// GetStats reports process and per-source runtime statistics.
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"worker_id":            h.WorkerID,
		"uptime_seconds":       int64(time.Since(h.started).Seconds()),
		"memory_mb":            m.Alloc / 1024 / 1024,
		"cpu_cores":            runtime.NumCPU(),
		"goroutines":           runtime.NumGoroutine(),
		"detector_unavailable": h.detector.UnavailableCount(),
		"streams":              h.stats.StreamStats(),
		"pipelines":            h.stats.PipelineStats(),
	})
}
