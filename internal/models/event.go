package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the rule that produced an event candidate.
type EventType string

const (
	EventIntrusion         EventType = "intrusion"
	EventLoitering         EventType = "loitering"
	EventTheft             EventType = "theft"
	EventCrowdAnomaly      EventType = "crowd_anomaly"
	EventBehavioralAnomaly EventType = "behavioral_anomaly"
)

// Severity is the rule-assigned severity of an event candidate.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IntrusionMeta is the evidence payload for intrusion candidates.
type IntrusionMeta struct {
	DwellSeconds float64 `json:"dwell_seconds"`
	ClassName    string  `json:"class_name"`
}

// LoiteringMeta is the evidence payload for loitering candidates.
type LoiteringMeta struct {
	DwellSeconds     float64 `json:"dwell_seconds"`
	MovementDistance float64 `json:"movement_distance"`
	ClassName        string  `json:"class_name"`
}

// TheftMeta links the removed object track with the suspected person track.
type TheftMeta struct {
	ObjectTrackID int64  `json:"object_track_id"`
	PersonTrackID int64  `json:"person_track_id"`
	ObjectClass   string `json:"object_class"`
}

// CrowdMeta is the evidence payload for crowd anomaly candidates.
type CrowdMeta struct {
	PersonCount int `json:"person_count"`
	Threshold   int `json:"threshold"`
}

// BehaviorMeta carries the anomaly sub-scores behind a behavioral candidate.
type BehaviorMeta struct {
	AnomalyScore   float64 `json:"anomaly_score"`
	HandMotion     float64 `json:"hand_motion"`
	BodyBend       float64 `json:"body_bend"`
	HandProximity  float64 `json:"hand_proximity"`
	VelocitySpread float64 `json:"velocity_spread"`
	Method         string  `json:"method"`
}

// EventCandidate is an unvalidated, typed event proposal. It is immutable
// once constructed; the external validator/alerting subsystem is the sole
// consumer. Exactly one metadata field is set, matching Type.
type EventCandidate struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id,omitempty"`
	Type       EventType `json:"event_type"`
	ZoneID     string    `json:"zone_id,omitempty"`
	TrackID    int64     `json:"track_id"`
	Confidence float64   `json:"confidence"`
	Severity   Severity  `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`

	Intrusion *IntrusionMeta `json:"intrusion,omitempty"`
	Loitering *LoiteringMeta `json:"loitering,omitempty"`
	Theft     *TheftMeta     `json:"theft,omitempty"`
	Crowd     *CrowdMeta     `json:"crowd,omitempty"`
	Behavior  *BehaviorMeta  `json:"behavior,omitempty"`
}

// NewEventCandidate builds a candidate with a fresh id. Callers attach the
// type-specific metadata field themselves.
func NewEventCandidate(t EventType, severity Severity, confidence float64, ts time.Time) EventCandidate {
	return EventCandidate{
		ID:         uuid.NewString(),
		Type:       t,
		Severity:   severity,
		Confidence: confidence,
		Timestamp:  ts,
	}
}
