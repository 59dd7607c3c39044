package anomaly

import "vigil-worker-go/internal/models"

// Buffer accumulates per-track pose observations and cuts fixed-length
// sliding windows out of them. A window is emitted once per stride, so
// overlapping windows share length-stride frames.
type Buffer struct {
	length int
	stride int

	poses     map[int64][]models.Pose
	sinceEmit map[int64]int
}

// NewBuffer creates a buffer cutting windows of length frames every
// stride frames.
func NewBuffer(length, stride int) *Buffer {
	if length < 1 {
		length = 1
	}
	if stride < 1 {
		stride = 1
	}
	return &Buffer{
		length:    length,
		stride:    stride,
		poses:     make(map[int64][]models.Pose),
		sinceEmit: make(map[int64]int),
	}
}

// Add appends one pose to the track's history and returns a full window
// when one is due. The returned slice is a copy and safe to retain.
func (b *Buffer) Add(trackID int64, pose models.Pose) ([]models.Pose, bool) {
	hist := append(b.poses[trackID], pose)
	if len(hist) > b.length {
		hist = hist[len(hist)-b.length:]
	}
	b.poses[trackID] = hist
	b.sinceEmit[trackID]++

	if len(hist) < b.length || b.sinceEmit[trackID] < b.stride {
		return nil, false
	}
	b.sinceEmit[trackID] = 0
	window := make([]models.Pose, b.length)
	copy(window, hist)
	return window, true
}

// Remove drops all buffered state for a track.
func (b *Buffer) Remove(trackID int64) {
	delete(b.poses, trackID)
	delete(b.sinceEmit, trackID)
}

// Retain drops state for every track not present in live, keeping the
// buffer bounded by the tracker's own eviction.
func (b *Buffer) Retain(live map[int64]bool) {
	for id := range b.poses {
		if !live[id] {
			b.Remove(id)
		}
	}
}

// Len returns the number of tracks with buffered poses.
func (b *Buffer) Len() int {
	return len(b.poses)
}
