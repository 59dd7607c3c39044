package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/anomaly"
	"vigil-worker-go/internal/config"
	"vigil-worker-go/internal/ingest"
	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/rules"
	"vigil-worker-go/internal/services/detection"
	"vigil-worker-go/internal/tracking"
)

// Detector runs inference on one frame.
type Detector interface {
	ProcessFrame(ctx context.Context, meta models.FrameMetadata, image []byte) (*detection.Response, error)
}

// Publisher ships event candidates downstream.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Stats is a point-in-time snapshot of one pipeline's counters.
type Stats struct {
	FramesProcessed  int64 `json:"frames_processed"`
	FramesSkipped    int64 `json:"frames_skipped"`
	DetectorFailures int64 `json:"detector_failures"`
	EventsPublished  int64 `json:"events_published"`
	PublishFailures  int64 `json:"publish_failures"`
	LiveTracks       int   `json:"live_tracks"`
}

// Pipeline drives one source end to end: pull frames, run inference, fold
// detections into the tracker, evaluate rules and publish candidates. A
// detector or publish failure drops that frame's work but never stops the
// loop; the stream side keeps its own reconnect discipline.
type Pipeline struct {
	cfg      *config.Config
	sourceID string

	ingestor  *ingest.Ingestor
	detector  Detector
	publisher Publisher

	registry *tracking.Registry
	engine   *rules.Engine
	behavior *anomaly.Detector

	mu    sync.Mutex
	zones []models.Zone
	stats Stats

	stop chan struct{}
	done chan struct{}
}

// New assembles a pipeline for one source. The behavioral anomaly stage
// is skipped when disabled in configuration.
func New(cfg *config.Config, sourceID string, ing *ingest.Ingestor, det Detector, pub Publisher, zones []models.Zone) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		sourceID:  sourceID,
		ingestor:  ing,
		detector:  det,
		publisher: pub,
		zones:     zones,
		registry:  tracking.NewRegistry(cfg.MaxTrackAge, cfg.MaxPositions),
		engine:    rules.New(sourceID, rules.FromConfig(cfg)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cfg.AnomalyEnabled {
		p.behavior = anomaly.NewDetector(sourceID, anomaly.NewHeuristicScorer(),
			cfg.SequenceLength, cfg.SequenceStride, cfg.AnomalyThreshold, cfg.AnomalyCooldown)
	}
	return p
}

// Start launches the processing loop.
func (p *Pipeline) Start() {
	log.Info().
		Str("source_id", p.sourceID).
		Int("zones", len(p.zonesSnapshot())).
		Bool("behavior_analysis", p.behavior != nil).
		Msg("Starting pipeline")
	go p.run()
}

// SetZones replaces the zone list, taking effect from the next frame.
// Dwell state for zones present in both lists is preserved.
func (p *Pipeline) SetZones(zones []models.Zone) {
	p.mu.Lock()
	p.zones = zones
	p.mu.Unlock()
	log.Info().
		Str("source_id", p.sourceID).
		Int("zones", len(zones)).
		Msg("Zone configuration replaced")
}

func (p *Pipeline) zonesSnapshot() []models.Zone {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zones
}

// Stop signals the loop and waits until it has drained.
func (p *Pipeline) Stop() {
	close(p.stop)
	<-p.done
	log.Info().Str("source_id", p.sourceID).Msg("Pipeline stopped")
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.LiveTracks = p.registry.Len()
	return s
}

func (p *Pipeline) run() {
	defer close(p.done)

	var frameCount int64
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		frame := p.ingestor.GetFrame(time.Second)
		if frame == nil {
			continue
		}

		frameCount++
		if p.cfg.DetectFrameEvery > 1 && frameCount%int64(p.cfg.DetectFrameEvery) != 0 {
			p.count(func(s *Stats) { s.FramesSkipped++ })
			continue
		}

		p.processFrame(frame)
	}
}

func (p *Pipeline) processFrame(frame *ingest.Frame) {
	meta := models.FrameMetadata{
		SourceID:  p.sourceID,
		FrameID:   frame.FrameID,
		Timestamp: frame.Timestamp,
		Width:     frame.Width,
		Height:    frame.Height,
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		p.cfg.DetectorTimeout*time.Duration(p.cfg.DetectorMaxRetries+1))
	resp, err := p.detector.ProcessFrame(ctx, meta, frame.Data)
	cancel()
	if err != nil {
		p.count(func(s *Stats) { s.DetectorFailures++ })
		log.Warn().
			Err(err).
			Str("source_id", p.sourceID).
			Int64("frame_id", frame.FrameID).
			Msg("Inference failed, dropping frame")
		return
	}
	p.count(func(s *Stats) { s.FramesProcessed++ })

	zones := p.zonesSnapshot()
	p.registry.Update(resp.Detections, frame.Timestamp)
	for _, zone := range zones {
		p.registry.UpdateZonePresence(zone.ID, zone.Region, frame.Timestamp)
	}

	events := p.engine.Evaluate(p.registry, zones, frame.Timestamp)
	events = append(events, p.scorePoses(resp.Poses, frame.Timestamp)...)

	for _, ev := range events {
		if err := p.publisher.Publish(p.cfg.EventsSubject, ev); err != nil {
			p.count(func(s *Stats) { s.PublishFailures++ })
			log.Error().
				Err(err).
				Str("source_id", p.sourceID).
				Str("event_type", string(ev.Type)).
				Msg("Failed to publish event candidate")
			continue
		}
		p.count(func(s *Stats) { s.EventsPublished++ })
		log.Info().
			Str("source_id", p.sourceID).
			Str("event_type", string(ev.Type)).
			Str("severity", string(ev.Severity)).
			Str("zone_id", ev.ZoneID).
			Int64("track_id", ev.TrackID).
			Float64("confidence", ev.Confidence).
			Msg("Event candidate published")
	}
}

// scorePoses feeds the frame's poses through the behavior stage and prunes
// state for evicted tracks.
func (p *Pipeline) scorePoses(poses map[int64]models.Pose, ts time.Time) []models.EventCandidate {
	if p.behavior == nil || len(poses) == 0 {
		return nil
	}

	var events []models.EventCandidate
	for trackID, pose := range poses {
		if p.registry.Get(trackID) == nil {
			continue
		}
		if ev, ok := p.behavior.Observe(trackID, pose, ts); ok {
			events = append(events, ev)
		}
	}

	live := make(map[int64]bool, p.registry.Len())
	for _, t := range p.registry.Tracks() {
		live[t.ID] = true
	}
	p.behavior.Retain(live)

	return events
}

func (p *Pipeline) count(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}
