package rules

import (
	"strconv"
	"time"

	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/tracking"
)

// detectTheft correlates two tracks: an object that was inside a protected
// zone and is no longer there, and a person who stayed close to the object
// and is now inside a designated exit zone. The candidate carries no zone
// id; it spans zones. The pairing looks at recent trajectory samples
// rather than a single frame so a person brushing past the object once
// does not qualify.
func (e *Engine) detectTheft(reg *tracking.Registry, protected, exit models.Zone, now time.Time) []models.EventCandidate {
	var events []models.EventCandidate
	tracks := reg.Tracks()
	for _, obj := range tracks {
		if obj.ClassName == models.ClassPerson {
			continue
		}
		// Object was picked up inside the protected zone and has left it.
		if _, seen := obj.ZoneEntries[protected.ID]; !seen {
			continue
		}
		if obj.InZone(protected.ID) {
			continue
		}
		person := e.accompanyingPerson(tracks, obj, exit)
		if person == nil {
			continue
		}
		if !e.allow("theft|"+strconv.FormatInt(obj.ID, 10), e.cfg.TheftCooldown, now) {
			continue
		}
		confidence := obj.MeanConfidence()
		if pc := person.MeanConfidence(); pc < confidence {
			confidence = pc
		}
		ev := models.NewEventCandidate(models.EventTheft, models.SeverityCritical, confidence, now)
		ev.TrackID = person.ID
		ev.Theft = &models.TheftMeta{
			ObjectTrackID: obj.ID,
			PersonTrackID: person.ID,
			ObjectClass:   obj.ClassName,
		}
		events = append(events, ev)
	}
	return events
}

// accompanyingPerson returns the person now inside the exit zone whose
// recent trajectory stayed close to the object's for at least the required
// number of samples, or nil when nobody kept pace with it.
func (e *Engine) accompanyingPerson(tracks []*tracking.Track, obj *tracking.Track, exit models.Zone) *tracking.Track {
	objPath := obj.RecentPositions(e.cfg.TheftLookback)
	if len(objPath) == 0 {
		return nil
	}
	var best *tracking.Track
	bestNear := 0
	for _, person := range tracks {
		if person.ClassName != models.ClassPerson {
			continue
		}
		if !person.InZone(exit.ID) {
			continue
		}
		path := person.RecentPositions(e.cfg.TheftLookback)
		n := len(objPath)
		if len(path) < n {
			n = len(path)
		}
		near := 0
		for i := 1; i <= n; i++ {
			a := objPath[len(objPath)-i]
			b := path[len(path)-i]
			if a.Distance(b) < e.cfg.TheftNearDistance {
				near++
			}
		}
		if near >= e.cfg.TheftRecent && near > bestNear {
			best = person
			bestNear = near
		}
	}
	return best
}
