package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/tracking"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IntrusionDwell = 3 * time.Second
	cfg.LoiteringThreshold = 60 * time.Second
	cfg.LoiteringMovement = 100
	cfg.CrowdThreshold = 10
	return cfg
}

// feed pushes one detection per tick for a track standing still at p.
func feed(reg *tracking.Registry, trackID int64, class string, p models.Point, from time.Time, ticks int, step time.Duration) {
	for i := 0; i < ticks; i++ {
		ts := from.Add(time.Duration(i) * step)
		reg.Update([]models.Detection{{
			TrackID:    trackID,
			ClassName:  class,
			Confidence: 0.9,
			BBox:       models.BBox{X1: p.X - 10, Y1: p.Y - 10, X2: p.X + 10, Y2: p.Y + 10},
			Timestamp:  ts,
		}}, ts)
	}
}

func monitoredZone(id string) models.Zone {
	return models.Zone{
		ID:     id,
		Name:   id,
		Kind:   models.ZoneMonitored,
		Region: models.Rect{X1: 0, Y1: 0, X2: 500, Y2: 500},
	}
}

// afterHoursZone permits presence only overnight, so t0 at noon is a
// violation.
func afterHoursZone(id string) models.Zone {
	zone := monitoredZone(id)
	zone.Schedule = &models.Schedule{Windows: []models.ScheduleWindow{
		{Start: "20:00", End: "06:00"},
	}}
	return zone
}

func TestIntrusionFiresAfterDwell(t *testing.T) {
	reg := tracking.NewRegistry(30*time.Second, 100)
	zone := afterHoursZone("lobby")
	eng := New("cam-1", testConfig())

	feed(reg, 7, models.ClassPerson, models.Point{X: 100, Y: 100}, t0, 1, time.Second)
	reg.UpdateZonePresence(zone.ID, zone.Region, t0)

	// Below the dwell threshold nothing fires.
	events := eng.Evaluate(reg, []models.Zone{zone}, t0.Add(2*time.Second))
	assert.Empty(t, events)

	events = eng.Evaluate(reg, []models.Zone{zone}, t0.Add(4*time.Second))
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, models.EventIntrusion, ev.Type)
	assert.Equal(t, "cam-1", ev.SourceID)
	assert.Equal(t, "lobby", ev.ZoneID)
	assert.Equal(t, int64(7), ev.TrackID)
	assert.Equal(t, models.SeverityHigh, ev.Severity)
	require.NotNil(t, ev.Intrusion)
	assert.InDelta(t, 4.0, ev.Intrusion.DwellSeconds, 0.01)
	assert.Equal(t, models.ClassPerson, ev.Intrusion.ClassName)
	assert.NotEmpty(t, ev.ID)
}

func TestIntrusionCooldownSuppressesRepeat(t *testing.T) {
	reg := tracking.NewRegistry(30*time.Second, 100)
	zone := afterHoursZone("lobby")
	eng := New("cam-1", testConfig())

	feed(reg, 7, models.ClassPerson, models.Point{X: 100, Y: 100}, t0, 1, time.Second)
	reg.UpdateZonePresence(zone.ID, zone.Region, t0)

	events := eng.Evaluate(reg, []models.Zone{zone}, t0.Add(5*time.Second))
	require.Len(t, events, 1)

	// Still inside, still past the dwell threshold, but within cooldown.
	events = eng.Evaluate(reg, []models.Zone{zone}, t0.Add(10*time.Second))
	assert.Empty(t, events)

	// After the cooldown window the same condition fires again.
	events = eng.Evaluate(reg, []models.Zone{zone}, t0.Add(40*time.Second))
	assert.Len(t, events, 1)
}

func TestIntrusionRespectsSchedule(t *testing.T) {
	reg := tracking.NewRegistry(30*time.Second, 100)
	zone := monitoredZone("warehouse")
	zone.Schedule = &models.Schedule{Windows: []models.ScheduleWindow{
		{Start: "08:00", End: "18:00"},
	}}
	eng := New("cam-1", testConfig())

	feed(reg, 3, models.ClassPerson, models.Point{X: 50, Y: 50}, t0, 1, time.Second)
	reg.UpdateZonePresence(zone.ID, zone.Region, t0)

	// Midday is within business hours, so the presence is permitted.
	assert.Empty(t, eng.Evaluate(reg, []models.Zone{zone}, t0.Add(10*time.Second)))
}

func TestIntrusionSkipsUnscheduledZone(t *testing.T) {
	reg := tracking.NewRegistry(30*time.Second, 100)
	zone := monitoredZone("lobby")
	eng := New("cam-1", testConfig())

	feed(reg, 3, models.ClassPerson, models.Point{X: 50, Y: 50}, t0, 1, time.Second)
	reg.UpdateZonePresence(zone.ID, zone.Region, t0)

	// No schedule means presence is always permitted.
	assert.Empty(t, eng.Evaluate(reg, []models.Zone{zone}, t0.Add(10*time.Second)))
}

func TestLoitering(t *testing.T) {
	tests := []struct {
		name     string
		dwell    time.Duration
		movement float64
		want     int
	}{
		{"short stay", 30 * time.Second, 10, 0},
		{"long stay little movement", 90 * time.Second, 10, 1},
		{"long stay but moving", 120 * time.Second, 500, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tracking.NewRegistry(10*time.Minute, 200)
			zone := monitoredZone("aisle")
			eng := New("cam-1", testConfig())

			// Walk the track across tt.movement pixels in 10 steps.
			steps := 10
			for i := 0; i <= steps; i++ {
				ts := t0.Add(time.Duration(i) * tt.dwell / time.Duration(steps))
				x := 100 + tt.movement*float64(i)/float64(steps)
				reg.Update([]models.Detection{{
					TrackID:    1,
					ClassName:  models.ClassPerson,
					Confidence: 0.9,
					BBox:       models.BBox{X1: x - 5, Y1: 95, X2: x + 5, Y2: 105},
					Timestamp:  ts,
				}}, ts)
				if i == 0 {
					reg.UpdateZonePresence(zone.ID, zone.Region, ts)
				}
			}

			events := eng.Evaluate(reg, []models.Zone{zone}, t0.Add(tt.dwell))
			require.Len(t, events, tt.want)
			if tt.want == 1 {
				ev := events[0]
				assert.Equal(t, models.EventLoitering, ev.Type)
				require.NotNil(t, ev.Loitering)
				assert.Less(t, ev.Loitering.MovementDistance, 100.0)
				assert.GreaterOrEqual(t, ev.Loitering.DwellSeconds, 60.0)
			}
		})
	}
}

func TestCrowdThreshold(t *testing.T) {
	reg := tracking.NewRegistry(time.Minute, 100)
	zone := monitoredZone("plaza")
	eng := New("cam-1", testConfig())

	for i := int64(1); i <= 11; i++ {
		feed(reg, i, models.ClassPerson, models.Point{X: float64(i) * 10, Y: 100}, t0, 1, time.Second)
	}
	reg.UpdateZonePresence(zone.ID, zone.Region, t0)

	events := eng.Evaluate(reg, []models.Zone{zone}, t0.Add(time.Second))
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, models.EventCrowdAnomaly, ev.Type)
	assert.Equal(t, models.SeverityMedium, ev.Severity)
	require.NotNil(t, ev.Crowd)
	assert.Equal(t, 11, ev.Crowd.PersonCount)
	assert.Equal(t, 10, ev.Crowd.Threshold)

	// Same crowd inside the cooldown window stays quiet.
	events = eng.Evaluate(reg, []models.Zone{zone}, t0.Add(5*time.Second))
	assert.Empty(t, events)
}

func TestCrowdBelowThresholdStaysQuiet(t *testing.T) {
	reg := tracking.NewRegistry(time.Minute, 100)
	zone := monitoredZone("plaza")
	eng := New("cam-1", testConfig())

	for i := int64(1); i <= 9; i++ {
		feed(reg, i, models.ClassPerson, models.Point{X: float64(i) * 10, Y: 100}, t0, 1, time.Second)
	}
	reg.UpdateZonePresence(zone.ID, zone.Region, t0)

	assert.Empty(t, eng.Evaluate(reg, []models.Zone{zone}, t0.Add(time.Second)))
}

func TestTheftPairsObjectWithAccompanyingPerson(t *testing.T) {
	reg := tracking.NewRegistry(10*time.Minute, 100)
	protected := models.Zone{ID: "shelf", Kind: models.ZoneProtected, Region: models.Rect{X1: 0, Y1: 0, X2: 200, Y2: 200}}
	exit := models.Zone{ID: "door", Kind: models.ZoneExit, Region: models.Rect{X1: 400, Y1: 0, X2: 600, Y2: 200}}
	eng := New("cam-1", testConfig())

	// Object and person travel together from the shelf to the door.
	for i := 0; i < 10; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		x := 100 + float64(i)*40
		reg.Update([]models.Detection{
			{TrackID: 20, ClassName: "handbag", Confidence: 0.8,
				BBox: models.BBox{X1: x - 5, Y1: 95, X2: x + 5, Y2: 105}, Timestamp: ts},
			{TrackID: 21, ClassName: models.ClassPerson, Confidence: 0.9,
				BBox: models.BBox{X1: x - 25, Y1: 95, X2: x - 15, Y2: 105}, Timestamp: ts},
		}, ts)
		reg.UpdateZonePresence(protected.ID, protected.Region, ts)
		reg.UpdateZonePresence(exit.ID, exit.Region, ts)
	}

	events := eng.Evaluate(reg, []models.Zone{protected, exit}, t0.Add(10*time.Second))
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, models.EventTheft, ev.Type)
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.Empty(t, ev.ZoneID)
	assert.InDelta(t, 0.8, ev.Confidence, 0.001)
	require.NotNil(t, ev.Theft)
	assert.Equal(t, int64(20), ev.Theft.ObjectTrackID)
	assert.Equal(t, int64(21), ev.Theft.PersonTrackID)
	assert.Equal(t, "handbag", ev.Theft.ObjectClass)
}

func TestTheftIgnoresUnaccompaniedObject(t *testing.T) {
	reg := tracking.NewRegistry(10*time.Minute, 100)
	protected := models.Zone{ID: "shelf", Kind: models.ZoneProtected, Region: models.Rect{X1: 0, Y1: 0, X2: 200, Y2: 200}}
	exit := models.Zone{ID: "door", Kind: models.ZoneExit, Region: models.Rect{X1: 400, Y1: 0, X2: 600, Y2: 200}}
	eng := New("cam-1", testConfig())

	// Object drifts to the door; the only person stays far away.
	for i := 0; i < 10; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		x := 100 + float64(i)*40
		reg.Update([]models.Detection{
			{TrackID: 20, ClassName: "handbag", Confidence: 0.8,
				BBox: models.BBox{X1: x - 5, Y1: 95, X2: x + 5, Y2: 105}, Timestamp: ts},
			{TrackID: 21, ClassName: models.ClassPerson, Confidence: 0.9,
				BBox: models.BBox{X1: 995, Y1: 995, X2: 1005, Y2: 1005}, Timestamp: ts},
		}, ts)
		reg.UpdateZonePresence(protected.ID, protected.Region, ts)
		reg.UpdateZonePresence(exit.ID, exit.Region, ts)
	}

	assert.Empty(t, eng.Evaluate(reg, []models.Zone{protected, exit}, t0.Add(10*time.Second)))
}

func TestRulePanicDoesNotSuppressOthers(t *testing.T) {
	eng := New("cam-1", testConfig())
	got := eng.run("boom", func() []models.EventCandidate {
		panic("rule bug")
	})
	assert.Nil(t, got)
}
