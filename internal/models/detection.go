package models

import "time"

// Detection is one per-frame detection from the external detector service.
// Track identity is resolved upstream by the tracker and is stable across
// frames for the same physical object.
type Detection struct {
	TrackID    int64     `json:"track_id"`
	ClassID    int       `json:"class_id"`
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	BBox       BBox      `json:"bbox"`
	Timestamp  time.Time `json:"timestamp"`
}

// Centroid returns the detection's bounding box center.
func (d Detection) Centroid() Point {
	return d.BBox.Centroid()
}

// ClassPerson is the detector label for people. Rules key off it.
const ClassPerson = "person"

// FrameMetadata carries frame-level context alongside detections.
type FrameMetadata struct {
	SourceID  string    `json:"source_id"`
	FrameID   int64     `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Pose is one person's keypoint set for a single frame, in COCO-18 order
// (nose 0, neck 1, wrists 4/7, hips 8/11). Coordinates are normalized to
// frame size so scores are resolution independent.
type Pose [18]Point
