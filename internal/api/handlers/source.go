package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/ingest"
	"vigil-worker-go/internal/services/pipeline"
)

// SourceManager is the runtime source-registration surface.
type SourceManager interface {
	AddSource(id, url string) error
	RemoveSource(id string) error
	SourceIDs() []string
	StreamStats() map[string]ingest.Stats
	PipelineStats() map[string]pipeline.Stats
}

type SourceHandler struct {
	manager SourceManager
}

func NewSourceHandler(manager SourceManager) *SourceHandler {
	return &SourceHandler{manager: manager}
}

type AddSourceRequest struct {
	ID  string `json:"id" binding:"required"`
	URL string `json:"url" binding:"required"`
}

// ListSources returns the ids of every registered source.
func (h *SourceHandler) ListSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.manager.SourceIDs()})
}

// AddSource registers a stream and starts processing it.
func (h *SourceHandler) AddSource(c *gin.Context) {
	var req AddSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.AddSource(req.ID, req.URL); err != nil {
		log.Warn().Err(err).Str("source_id", req.ID).Msg("Failed to add source")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": req.ID, "status": "added"})
}

// RemoveSource stops and removes a stream.
func (h *SourceHandler) RemoveSource(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.RemoveSource(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": "removed"})
}

// SourceStats returns ingest and processing diagnostics for one source.
func (h *SourceHandler) SourceStats(c *gin.Context) {
	id := c.Param("id")

	streamStats, ok := h.manager.StreamStats()[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"stream":   streamStats,
		"pipeline": h.manager.PipelineStats()[id],
	})
}
