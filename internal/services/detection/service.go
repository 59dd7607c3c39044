package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/config"
	"vigil-worker-go/internal/models"
)

// Request is one inference request sent to the detector service. The
// image is the raw BGR frame; JSON encoding base64s it on the wire.
type Request struct {
	Meta  models.FrameMetadata `json:"meta"`
	Image []byte               `json:"image"`
}

// Response carries the detector's output for one frame. Poses are keyed
// by track id and present only for person detections the pose estimator
// resolved.
type Response struct {
	Detections []models.Detection    `json:"detections"`
	Poses      map[int64]models.Pose `json:"poses,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Requester is the messaging surface the client needs.
type Requester interface {
	Request(subject string, data interface{}, timeout time.Duration) ([]byte, error)
	IsConnected() bool
}

// Service is the client for the external detector over request/reply.
// Inference runs out of process; this side only ships frames and decodes
// results.
type Service struct {
	nc         Requester
	subject    string
	timeout    time.Duration
	maxRetries int

	mu          sync.Mutex
	isHealthy   bool
	unavailable int64
}

func NewService(nc Requester, cfg *config.Config) *Service {
	log.Info().Str("subject", cfg.DetectorSubject).Msg("Initializing detector client")

	return &Service{
		nc:         nc,
		subject:    cfg.DetectorSubject,
		timeout:    cfg.DetectorTimeout,
		maxRetries: cfg.DetectorMaxRetries,
		isHealthy:  true,
	}
}

// ProcessFrame runs one frame through the detector. Transient transport
// failures are retried up to the configured limit; a reply carrying an
// application error is returned without retry.
func (s *Service) ProcessFrame(ctx context.Context, meta models.FrameMetadata, image []byte) (*Response, error) {
	if !s.nc.IsConnected() {
		s.markUnavailable()
		return nil, errors.New("detector unavailable: messaging disconnected")
	}

	req := Request{Meta: meta, Image: image}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := s.nc.Request(s.subject, req, s.timeout)
		if err != nil {
			lastErr = err
			if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			break
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode detector response: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("detector error: %s", resp.Error)
		}

		s.markHealthy()
		return &resp, nil
	}

	s.markUnavailable()
	return nil, fmt.Errorf("detector unavailable: %w", lastErr)
}

func (s *Service) markHealthy() {
	s.mu.Lock()
	s.isHealthy = true
	s.mu.Unlock()
}

func (s *Service) markUnavailable() {
	s.mu.Lock()
	s.isHealthy = false
	s.unavailable++
	s.mu.Unlock()
}

// IsHealthy reports whether the last inference round trip succeeded.
func (s *Service) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHealthy
}

// UnavailableCount returns how many frames were dropped because the
// detector could not be reached.
func (s *Service) UnavailableCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}
