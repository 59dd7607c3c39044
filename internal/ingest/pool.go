package ingest

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/config"
)

// SourceHealth is the per-source entry in the pool's health report.
type SourceHealth struct {
	Connected  bool `json:"connected"`
	Healthy    bool `json:"healthy"`
	ErrorCount int  `json:"error_count"`
	QueueSize  int  `json:"queue_size"`
}

// Pool owns the mapping from source id to ingestor. Structural mutations
// are serialized by one lock; reads may proceed concurrently.
type Pool struct {
	cfg *config.Config

	mu        sync.RWMutex
	ingestors map[string]*Ingestor
}

// NewPool creates an empty ingestor pool.
func NewPool(cfg *config.Config) *Pool {
	return &Pool{
		cfg:       cfg,
		ingestors: make(map[string]*Ingestor),
	}
}

// AddSource constructs and starts an ingestor for the source. Returns
// false if the id is already present or the pool is full.
func (p *Pool) AddSource(id, url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.ingestors[id]; exists {
		log.Warn().Str("source_id", id).Msg("Source already in pool")
		return false
	}
	if p.cfg.MaxSources > 0 && len(p.ingestors) >= p.cfg.MaxSources {
		log.Warn().Str("source_id", id).Int("max_sources", p.cfg.MaxSources).Msg("Source pool full")
		return false
	}

	ing := NewIngestor(id, url, p.cfg)
	if !ing.Start() {
		return false
	}
	p.ingestors[id] = ing
	return true
}

// RemoveSource stops and discards a source. False if not present.
func (p *Pool) RemoveSource(id string) bool {
	p.mu.Lock()
	ing, exists := p.ingestors[id]
	if exists {
		delete(p.ingestors, id)
	}
	p.mu.Unlock()

	if !exists {
		return false
	}
	ing.Stop()
	return true
}

// Get returns the ingestor for a source id, or nil.
func (p *Pool) Get(id string) *Ingestor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ingestors[id]
}

// GetFrame returns the next frame from one source, or nil on timeout or
// unknown id.
func (p *Pool) GetFrame(id string, timeout time.Duration) *Frame {
	ing := p.Get(id)
	if ing == nil {
		return nil
	}
	return ing.GetFrame(timeout)
}

// SourceIDs returns the ids currently in the pool.
func (p *Pool) SourceIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.ingestors))
	for id := range p.ingestors {
		ids = append(ids, id)
	}
	return ids
}

// HealthStatus reports per-source health for diagnostics. An unhealthy
// source is visible here; it is never silently treated as "no events".
func (p *Pool) HealthStatus() map[string]SourceHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := make(map[string]SourceHealth, len(p.ingestors))
	for id, ing := range p.ingestors {
		s := ing.Stats()
		status[id] = SourceHealth{
			Connected:  s.Connected,
			Healthy:    s.Healthy,
			ErrorCount: s.ErrorCount,
			QueueSize:  s.QueueSize,
		}
	}
	return status
}

// Stats returns full diagnostics snapshots for every source.
func (p *Pool) Stats() map[string]Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make(map[string]Stats, len(p.ingestors))
	for id, ing := range p.ingestors {
		stats[id] = ing.Stats()
	}
	return stats
}

// StopAll stops every ingestor and empties the pool.
func (p *Pool) StopAll() {
	p.mu.Lock()
	ingestors := p.ingestors
	p.ingestors = make(map[string]*Ingestor)
	p.mu.Unlock()

	for _, ing := range ingestors {
		ing.Stop()
	}
	log.Info().Int("stopped", len(ingestors)).Msg("All stream ingestors stopped")
}
