package rules

import (
	"time"

	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/tracking"
)

// detectCrowd fires when the number of live person tracks inside a zone
// exceeds the zone's threshold. The candidate is zone-scoped, so the
// confidence is fixed rather than derived from any single track.
func (e *Engine) detectCrowd(reg *tracking.Registry, zone models.Zone, now time.Time) []models.EventCandidate {
	threshold := zone.PersonThreshold
	if threshold <= 0 {
		threshold = e.cfg.CrowdThreshold
	}
	count := reg.CountInZone(zone.ID, models.ClassPerson)
	if count <= threshold {
		return nil
	}
	if !e.allow("crowd|"+zone.ID, e.cfg.CrowdCooldown, now) {
		return nil
	}
	ev := models.NewEventCandidate(models.EventCrowdAnomaly, models.SeverityMedium, 0.8, now)
	ev.ZoneID = zone.ID
	ev.Crowd = &models.CrowdMeta{
		PersonCount: count,
		Threshold:   threshold,
	}
	return []models.EventCandidate{ev}
}
