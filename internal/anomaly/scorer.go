package anomaly

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"vigil-worker-go/internal/models"
)

// COCO-18 keypoint indexes used by the heuristics.
const (
	kpNose   = 0
	kpNeck   = 1
	kpRWrist = 4
	kpLWrist = 7
	kpRHip   = 8
	kpLHip   = 11
)

// Score is one sequence's anomaly verdict with its heuristic components.
// Components are each normalized to [0,1]; Value is their weighted sum.
type Score struct {
	Value          float64
	HandMotion     float64
	BodyBend       float64
	HandProximity  float64
	VelocitySpread float64
	Method         string
}

// SequenceScorer scores a fixed-length pose sequence for one track.
// Implementations must be safe to call from a single pipeline goroutine.
type SequenceScorer interface {
	Score(seq []models.Pose) (Score, error)
}

// Component weights. Hand motion dominates because concealment gestures
// show up there first.
const (
	weightHandMotion     = 0.30
	weightBodyBend       = 0.25
	weightHandProximity  = 0.25
	weightVelocitySpread = 0.20
)

// Normalization constants for the raw heuristic measurements.
const (
	handVelocityNorm     = 0.1
	bendAngleNorm        = math.Pi / 2
	proximityThreshold   = 0.15
	velocityVarianceNorm = 0.002
)

// HeuristicScorer scores pose sequences with hand-crafted kinematic
// features. It needs no model weights and is the fallback when no learned
// scorer is configured.
type HeuristicScorer struct{}

// NewHeuristicScorer returns the stock heuristic scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score computes the weighted heuristic anomaly score for the sequence.
func (s *HeuristicScorer) Score(seq []models.Pose) (Score, error) {
	if len(seq) < 2 {
		return Score{Method: "heuristic"}, nil
	}
	sc := Score{
		HandMotion:     handMotion(seq),
		BodyBend:       bodyBend(seq),
		HandProximity:  handProximity(seq),
		VelocitySpread: velocitySpread(seq),
		Method:         "heuristic",
	}
	sc.Value = weightHandMotion*sc.HandMotion +
		weightBodyBend*sc.BodyBend +
		weightHandProximity*sc.HandProximity +
		weightVelocitySpread*sc.VelocitySpread
	return sc, nil
}

// handMotion is the peak per-frame wrist displacement, normalized. Fast
// hand movement is the strongest single concealment signal.
func handMotion(seq []models.Pose) float64 {
	peak := 0.0
	for i := 1; i < len(seq); i++ {
		for _, kp := range []int{kpRWrist, kpLWrist} {
			prev, cur := seq[i-1][kp], seq[i][kp]
			if missing(prev) || missing(cur) {
				continue
			}
			if v := prev.Distance(cur); v > peak {
				peak = v
			}
		}
	}
	return clamp(peak / handVelocityNorm)
}

// bodyBend is the peak torso inclination from vertical, normalized to a
// right angle. The torso axis runs from the neck to the hip midpoint.
func bodyBend(seq []models.Pose) float64 {
	peak := 0.0
	for _, pose := range seq {
		neck := pose[kpNeck]
		hip := hipMidpoint(pose)
		if missing(neck) || missing(hip) {
			continue
		}
		dx := hip.X - neck.X
		dy := hip.Y - neck.Y
		if dx == 0 && dy == 0 {
			continue
		}
		// Angle between the torso axis and straight down.
		angle := math.Abs(math.Atan2(dx, dy))
		if angle > peak {
			peak = angle
		}
	}
	return clamp(peak / bendAngleNorm)
}

// handProximity is the fraction of frames where a wrist sits within the
// proximity threshold of a hip, the posture of tucking something away.
func handProximity(seq []models.Pose) float64 {
	near, total := 0, 0
	for _, pose := range seq {
		hip := hipMidpoint(pose)
		if missing(hip) {
			continue
		}
		counted := false
		for _, kp := range []int{kpRWrist, kpLWrist} {
			wrist := pose[kp]
			if missing(wrist) {
				continue
			}
			counted = true
			if wrist.Distance(hip) < proximityThreshold {
				near++
				break
			}
		}
		if counted {
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(near) / float64(total)
}

// velocitySpread is the variance of the body-center speed across the
// sequence, normalized. Erratic stop-and-go movement scores high, steady
// walking scores near zero.
func velocitySpread(seq []models.Pose) float64 {
	var speeds []float64
	for i := 1; i < len(seq); i++ {
		prev, cur := center(seq[i-1]), center(seq[i])
		if missing(prev) || missing(cur) {
			continue
		}
		speeds = append(speeds, prev.Distance(cur))
	}
	if len(speeds) < 2 {
		return 0
	}
	return clamp(stat.Variance(speeds, nil) / velocityVarianceNorm)
}

// hipMidpoint returns the midpoint of both hips, falling back to a single
// visible hip.
func hipMidpoint(pose models.Pose) models.Point {
	r, l := pose[kpRHip], pose[kpLHip]
	switch {
	case !missing(r) && !missing(l):
		return models.Point{X: (r.X + l.X) / 2, Y: (r.Y + l.Y) / 2}
	case !missing(r):
		return r
	case !missing(l):
		return l
	}
	return models.Point{}
}

// center approximates the body center from neck and hips, falling back to
// the nose when the trunk is occluded.
func center(pose models.Pose) models.Point {
	neck := pose[kpNeck]
	hip := hipMidpoint(pose)
	switch {
	case !missing(neck) && !missing(hip):
		return models.Point{X: (neck.X + hip.X) / 2, Y: (neck.Y + hip.Y) / 2}
	case !missing(neck):
		return neck
	case !missing(hip):
		return hip
	}
	return pose[kpNose]
}

// missing reports whether a keypoint was not detected. The detector emits
// the zero point for undetected joints.
func missing(p models.Point) bool {
	return p.X == 0 && p.Y == 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
