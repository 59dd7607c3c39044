package tracking

import (
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"vigil-worker-go/internal/models"
)

// Track is the time-persistent state of one physically tracked object,
// keyed by the stable identity assigned by the external tracker.
type Track struct {
	ID        int64
	ClassName string
	FirstSeen time.Time
	LastSeen  time.Time

	// Positions is the bounded history of recent centroids, oldest first.
	Positions []models.Point

	// ZoneEntries and ZoneExits record the most recent entry/exit stamp
	// per zone. An exit only ever follows an entry.
	ZoneEntries map[string]time.Time
	ZoneExits   map[string]time.Time

	ConfidenceHistory []float64
}

// Duration is the track's observed lifetime.
func (t *Track) Duration() time.Duration {
	return t.LastSeen.Sub(t.FirstSeen)
}

// InZone reports whether the track is currently inside the zone, judged
// from the recorded entry/exit stamps.
func (t *Track) InZone(zoneID string) bool {
	entry, ok := t.ZoneEntries[zoneID]
	if !ok {
		return false
	}
	exit, ok := t.ZoneExits[zoneID]
	return !ok || exit.Before(entry)
}

// DwellTime is the elapsed time the track has spent in the zone: exit
// minus entry when it has left, now minus entry while it is present.
// Zero for zones never entered.
func (t *Track) DwellTime(zoneID string, now time.Time) time.Duration {
	entry, ok := t.ZoneEntries[zoneID]
	if !ok {
		return 0
	}
	if exit, ok := t.ZoneExits[zoneID]; ok && !exit.Before(entry) {
		return exit.Sub(entry)
	}
	if now.Before(entry) {
		return 0
	}
	return now.Sub(entry)
}

// MovementDistance is the summed distance between consecutive centroids.
func (t *Track) MovementDistance() float64 {
	total := 0.0
	for i := 1; i < len(t.Positions); i++ {
		total += t.Positions[i].Distance(t.Positions[i-1])
	}
	return total
}

// MeanConfidence averages the detection confidence history, 0 when empty.
func (t *Track) MeanConfidence() float64 {
	if len(t.ConfidenceHistory) == 0 {
		return 0
	}
	return stat.Mean(t.ConfidenceHistory, nil)
}

// LastPosition returns the most recent centroid, false when none exists.
func (t *Track) LastPosition() (models.Point, bool) {
	if len(t.Positions) == 0 {
		return models.Point{}, false
	}
	return t.Positions[len(t.Positions)-1], true
}

// RecentPositions returns up to n of the newest positions, oldest first.
// The returned slice aliases the track history and must not be mutated.
func (t *Track) RecentPositions(n int) []models.Point {
	if n <= 0 || len(t.Positions) == 0 {
		return nil
	}
	if n >= len(t.Positions) {
		return t.Positions
	}
	return t.Positions[len(t.Positions)-n:]
}

// Registry maintains one Track per distinct tracked object and answers
// zone-presence queries. It is owned by a single per-source processing
// loop; no concurrent mutation of a track is allowed.
type Registry struct {
	maxAge       time.Duration
	maxPositions int
	tracks       map[int64]*Track
}

// NewRegistry creates a registry that evicts tracks unseen for maxAge and
// caps per-track history at maxPositions entries.
func NewRegistry(maxAge time.Duration, maxPositions int) *Registry {
	if maxPositions < 1 {
		maxPositions = 1
	}
	return &Registry{
		maxAge:       maxAge,
		maxPositions: maxPositions,
		tracks:       make(map[int64]*Track),
	}
}

// Update folds one frame's detections into the registry, then evicts every
// track whose last sighting is older than the max track age.
func (r *Registry) Update(detections []models.Detection, ts time.Time) {
	for _, det := range detections {
		track, ok := r.tracks[det.TrackID]
		if !ok {
			track = &Track{
				ID:          det.TrackID,
				ClassName:   det.ClassName,
				FirstSeen:   ts,
				LastSeen:    ts,
				ZoneEntries: make(map[string]time.Time),
				ZoneExits:   make(map[string]time.Time),
			}
			r.tracks[det.TrackID] = track
		}
		if ts.After(track.LastSeen) {
			track.LastSeen = ts
		}

		track.Positions = append(track.Positions, det.Centroid())
		if len(track.Positions) > r.maxPositions {
			track.Positions = track.Positions[len(track.Positions)-r.maxPositions:]
		}
		track.ConfidenceHistory = append(track.ConfidenceHistory, det.Confidence)
		if len(track.ConfidenceHistory) > r.maxPositions {
			track.ConfidenceHistory = track.ConfidenceHistory[len(track.ConfidenceHistory)-r.maxPositions:]
		}
	}

	r.evictStale(ts)
}

func (r *Registry) evictStale(now time.Time) {
	for id, track := range r.tracks {
		if now.Sub(track.LastSeen) > r.maxAge {
			log.Debug().
				Int64("track_id", id).
				Str("class", track.ClassName).
				Time("last_seen", track.LastSeen).
				Msg("Evicting stale track")
			delete(r.tracks, id)
		}
	}
}

// UpdateZonePresence refreshes every track's entry/exit stamps against one
// zone region. Entering stamps an entry (re-entry restarts dwell); leaving
// while present stamps an exit. Calling twice with no movement changes
// nothing.
func (r *Registry) UpdateZonePresence(zoneID string, region models.Rect, now time.Time) {
	for _, track := range r.tracks {
		pos, ok := track.LastPosition()
		if !ok {
			continue
		}

		inside := region.Contains(pos)
		present := track.InZone(zoneID)

		switch {
		case inside && !present:
			track.ZoneEntries[zoneID] = now
			delete(track.ZoneExits, zoneID)
		case !inside && present:
			track.ZoneExits[zoneID] = now
		}
	}
}

// Get returns the track for an id, or nil.
func (r *Registry) Get(id int64) *Track {
	return r.tracks[id]
}

// Tracks returns all live tracks.
func (r *Registry) Tracks() []*Track {
	out := make([]*Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		out = append(out, t)
	}
	return out
}

// Len returns the number of live tracks.
func (r *Registry) Len() int {
	return len(r.tracks)
}

// CountInZone counts live tracks of the class currently inside the zone.
func (r *Registry) CountInZone(zoneID, className string) int {
	count := 0
	for _, t := range r.tracks {
		if t.ClassName == className && t.InZone(zoneID) {
			count++
		}
	}
	return count
}
