package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/config"
	"vigil-worker-go/internal/ingest"
)

// Manager pairs every pool source with its pipeline and keeps both
// lifecycles in lockstep. Sources are added and removed at runtime
// through the API.
type Manager struct {
	cfg       *config.Config
	pool      *ingest.Pool
	detector  Detector
	publisher Publisher
	zones     *config.ZoneSet

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// NewManager creates a manager over an empty pool.
func NewManager(cfg *config.Config, pool *ingest.Pool, det Detector, pub Publisher, zones *config.ZoneSet) *Manager {
	return &Manager{
		cfg:       cfg,
		pool:      pool,
		detector:  det,
		publisher: pub,
		zones:     zones,
		pipelines: make(map[string]*Pipeline),
	}
}

// AddSource registers a stream and starts its pipeline.
func (m *Manager) AddSource(id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[id]; exists {
		return fmt.Errorf("source %s already registered", id)
	}
	if !m.pool.AddSource(id, url) {
		return fmt.Errorf("failed to add source %s: pool rejected it", id)
	}

	p := New(m.cfg, id, m.pool.Get(id), m.detector, m.publisher, m.zones.ForSource(id))
	p.Start()
	m.pipelines[id] = p

	log.Info().Str("source_id", id).Msg("Source registered")
	return nil
}

// RemoveSource stops a source's pipeline and ingestor.
func (m *Manager) RemoveSource(id string) error {
	m.mu.Lock()
	p, exists := m.pipelines[id]
	if exists {
		delete(m.pipelines, id)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("source %s not found", id)
	}

	p.Stop()
	m.pool.RemoveSource(id)
	log.Info().Str("source_id", id).Msg("Source removed")
	return nil
}

// ReloadZones swaps the zone configuration and pushes each source's new
// zone list into its running pipeline.
func (m *Manager) ReloadZones(zones *config.ZoneSet) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.zones = zones
	for id, p := range m.pipelines {
		p.SetZones(zones.ForSource(id))
	}
	log.Info().Int("pipelines", len(m.pipelines)).Msg("Zone configuration reloaded")
}

// HandleZonesReload consumes the zone-reload broadcast. The message body
// is ignored; the zones file is the source of truth, so every worker
// re-reads it and applies the result.
func (m *Manager) HandleZonesReload([]byte) {
	zones, err := config.LoadZones(m.cfg.ZonesFile)
	if err != nil {
		log.Error().
			Err(err).
			Str("path", m.cfg.ZonesFile).
			Msg("Zone reload failed, keeping previous configuration")
		return
	}
	m.ReloadZones(zones)
}

// SourceAssignment is the payload on the source-assignment subject.
type SourceAssignment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// HandleSourceAssign registers a source pushed over messaging. The
// subscription is queue-grouped, so exactly one worker claims each
// assignment.
func (m *Manager) HandleSourceAssign(data []byte) {
	var a SourceAssignment
	if err := json.Unmarshal(data, &a); err != nil {
		log.Error().Err(err).Msg("Discarding malformed source assignment")
		return
	}
	if a.ID == "" || a.URL == "" {
		log.Error().Str("source_id", a.ID).Msg("Discarding incomplete source assignment")
		return
	}
	if err := m.AddSource(a.ID, a.URL); err != nil {
		log.Error().Err(err).Str("source_id", a.ID).Msg("Source assignment rejected")
		return
	}
	log.Info().Str("source_id", a.ID).Msg("Source assignment accepted")
}

// SourceIDs lists the registered sources.
func (m *Manager) SourceIDs() []string {
	return m.pool.SourceIDs()
}

// StreamStats returns per-source ingest diagnostics.
func (m *Manager) StreamStats() map[string]ingest.Stats {
	return m.pool.Stats()
}

// HealthStatus returns per-source ingest health.
func (m *Manager) HealthStatus() map[string]ingest.SourceHealth {
	return m.pool.HealthStatus()
}

// PipelineStats returns per-source processing counters.
func (m *Manager) PipelineStats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]Stats, len(m.pipelines))
	for id, p := range m.pipelines {
		stats[id] = p.Stats()
	}
	return stats
}

// Shutdown stops every pipeline, then the pool. The context bounds how
// long the combined stop may take.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	pipelines := m.pipelines
	m.pipelines = make(map[string]*Pipeline)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, p := range pipelines {
			p.Stop()
		}
		m.pool.StopAll()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Int("pipelines", len(pipelines)).Msg("All pipelines stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
