package rules

import (
	"time"

	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/tracking"
)

// detectIntrusion fires for a person present in a zone outside its
// permitted access hours beyond the dwell threshold. Dwell restarts on
// re-entry, so a track crossing the zone boundary repeatedly never
// accumulates enough presence to fire. A zone without a schedule permits
// presence at any time and never produces intrusions.
func (e *Engine) detectIntrusion(reg *tracking.Registry, zone models.Zone, now time.Time) []models.EventCandidate {
	if zone.Schedule.Allowed(now) {
		return nil
	}

	var events []models.EventCandidate
	for _, track := range reg.Tracks() {
		if track.ClassName != models.ClassPerson {
			continue
		}
		if !track.InZone(zone.ID) {
			continue
		}
		dwell := track.DwellTime(zone.ID, now)
		if dwell < e.cfg.IntrusionDwell {
			continue
		}
		if !e.allow("intrusion|"+zone.ID, e.cfg.IntrusionCooldown, now) {
			break
		}
		ev := models.NewEventCandidate(models.EventIntrusion, models.SeverityHigh, track.MeanConfidence(), now)
		ev.ZoneID = zone.ID
		ev.TrackID = track.ID
		ev.Intrusion = &models.IntrusionMeta{
			DwellSeconds: dwell.Seconds(),
			ClassName:    track.ClassName,
		}
		events = append(events, ev)
		break
	}
	return events
}
