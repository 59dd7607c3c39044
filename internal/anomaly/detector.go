package anomaly

import (
	"time"

	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/models"
)

// Detector folds pose observations into sliding windows, scores every
// complete window and emits behavioral anomaly candidates for scores at
// or above the threshold. One detector serves one source.
type Detector struct {
	sourceID  string
	buf       *Buffer
	scorer    SequenceScorer
	threshold float64
	cooldown  time.Duration
	lastFired map[int64]time.Time
}

// NewDetector builds a detector over the given scorer.
func NewDetector(sourceID string, scorer SequenceScorer, length, stride int, threshold float64, cooldown time.Duration) *Detector {
	return &Detector{
		sourceID:  sourceID,
		buf:       NewBuffer(length, stride),
		scorer:    scorer,
		threshold: threshold,
		cooldown:  cooldown,
		lastFired: make(map[int64]time.Time),
	}
}

// Observe feeds one pose for a track. When a window completes and its
// score clears the threshold outside the track's cooldown, Observe
// returns the candidate and true.
func (d *Detector) Observe(trackID int64, pose models.Pose, now time.Time) (models.EventCandidate, bool) {
	window, ready := d.buf.Add(trackID, pose)
	if !ready {
		return models.EventCandidate{}, false
	}

	score, err := d.scorer.Score(window)
	if err != nil {
		log.Warn().
			Err(err).
			Str("source_id", d.sourceID).
			Int64("track_id", trackID).
			Msg("Sequence scoring failed, falling back to heuristics")
		score, _ = NewHeuristicScorer().Score(window)
	}
	if score.Value < d.threshold {
		return models.EventCandidate{}, false
	}
	if last, ok := d.lastFired[trackID]; ok && now.Sub(last) < d.cooldown {
		return models.EventCandidate{}, false
	}
	d.lastFired[trackID] = now

	ev := models.NewEventCandidate(models.EventBehavioralAnomaly, severityFor(score.Value), score.Value, now)
	ev.SourceID = d.sourceID
	ev.TrackID = trackID
	ev.Behavior = &models.BehaviorMeta{
		AnomalyScore:   score.Value,
		HandMotion:     score.HandMotion,
		BodyBend:       score.BodyBend,
		HandProximity:  score.HandProximity,
		VelocitySpread: score.VelocitySpread,
		Method:         score.Method,
	}
	return ev, true
}

// Retain drops buffered pose state for tracks the tracker has evicted.
func (d *Detector) Retain(live map[int64]bool) {
	d.buf.Retain(live)
	for id := range d.lastFired {
		if !live[id] {
			delete(d.lastFired, id)
		}
	}
}

// severityFor maps an anomaly score onto the severity ladder.
func severityFor(score float64) models.Severity {
	switch {
	case score >= 0.9:
		return models.SeverityCritical
	case score >= 0.8:
		return models.SeverityHigh
	case score >= 0.7:
		return models.SeverityMedium
	}
	return models.SeverityLow
}
