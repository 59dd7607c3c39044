package rules

import (
	"time"

	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/tracking"
)

// detectLoitering fires when a person lingers in a zone past the loitering
// threshold while covering little ground. Tracks that dwell long but keep
// moving (a patrolling guard, a pacing shopper) are excluded by the
// movement bound.
func (e *Engine) detectLoitering(reg *tracking.Registry, zone models.Zone, now time.Time) []models.EventCandidate {
	var events []models.EventCandidate
	for _, track := range reg.Tracks() {
		if track.ClassName != models.ClassPerson {
			continue
		}
		if !track.InZone(zone.ID) {
			continue
		}
		dwell := track.DwellTime(zone.ID, now)
		if dwell < e.cfg.LoiteringThreshold {
			continue
		}
		movement := track.MovementDistance()
		if movement >= e.cfg.LoiteringMovement {
			continue
		}
		if !e.allow("loitering|"+zone.ID, e.cfg.LoiteringCooldown, now) {
			break
		}
		ev := models.NewEventCandidate(models.EventLoitering, models.SeverityMedium, track.MeanConfidence(), now)
		ev.ZoneID = zone.ID
		ev.TrackID = track.ID
		ev.Loitering = &models.LoiteringMeta{
			DwellSeconds:     dwell.Seconds(),
			MovementDistance: movement,
			ClassName:        track.ClassName,
		}
		events = append(events, ev)
		break
	}
	return events
}
