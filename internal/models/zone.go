package models

import (
	"fmt"
	"strings"
	"time"
)

// ZoneKind distinguishes how rules use a zone.
type ZoneKind string

const (
	// ZoneMonitored zones feed the intrusion, loitering and crowd rules.
	ZoneMonitored ZoneKind = "monitored"
	// ZoneProtected zones hold valuables watched by the theft rule.
	ZoneProtected ZoneKind = "protected"
	// ZoneExit zones mark egress paths used by the theft rule.
	ZoneExit ZoneKind = "exit"
)

// Zone is a named spatial region with an optional access-time schedule.
// Zones are owned by configuration and read-only to the core.
type Zone struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Kind            ZoneKind  `json:"kind"`
	Region          Rect      `json:"region"`
	Schedule        *Schedule `json:"schedule,omitempty"`
	PersonThreshold int       `json:"person_threshold,omitempty"`
}

// Schedule lists the time windows during which presence in the zone is
// permitted. An empty window list permits presence at any time.
type Schedule struct {
	Windows []ScheduleWindow `json:"windows"`
}

// ScheduleWindow is one allowed interval, e.g. Mon-Fri 08:00-18:00.
// Days is a list of short weekday names; empty means every day.
type ScheduleWindow struct {
	Days  []string `json:"days,omitempty"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

// Allowed reports whether presence at t is permitted. A nil schedule or a
// schedule with no windows always permits.
func (s *Schedule) Allowed(t time.Time) bool {
	if s == nil || len(s.Windows) == 0 {
		return true
	}
	for _, w := range s.Windows {
		if w.contains(t) {
			return true
		}
	}
	return false
}

func (w ScheduleWindow) contains(t time.Time) bool {
	if len(w.Days) > 0 {
		day := strings.ToLower(t.Weekday().String()[:3])
		match := false
		for _, d := range w.Days {
			d = strings.ToLower(d)
			if len(d) >= 3 && d[:3] == day {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window wraps midnight, e.g. 22:00-06:00.
	return minute >= start || minute < end
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// Validate checks zone fields that configuration cannot default.
func (z Zone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("zone without id")
	}
	if z.Region.X2 < z.Region.X1 || z.Region.Y2 < z.Region.Y1 {
		return fmt.Errorf("zone %s: degenerate region", z.ID)
	}
	switch z.Kind {
	case ZoneMonitored, ZoneProtected, ZoneExit, "":
	default:
		return fmt.Errorf("zone %s: unknown kind %q", z.ID, z.Kind)
	}
	if z.Schedule != nil {
		for _, w := range z.Schedule.Windows {
			if _, err := parseClock(w.Start); err != nil {
				return fmt.Errorf("zone %s: %w", z.ID, err)
			}
			if _, err := parseClock(w.End); err != nil {
				return fmt.Errorf("zone %s: %w", z.ID, err)
			}
		}
	}
	return nil
}
