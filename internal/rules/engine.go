package rules

import (
	"time"

	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/config"
	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/tracking"
)

// Config carries the rule thresholds and per-rule cooldown windows. The
// theft proximity and lookback values are tunable heuristics, not
// load-bearing correctness guarantees.
type Config struct {
	IntrusionDwell    time.Duration
	IntrusionCooldown time.Duration

	LoiteringThreshold time.Duration
	LoiteringMovement  float64
	LoiteringCooldown  time.Duration

	TheftLookback     int
	TheftRecent       int
	TheftNearDistance float64
	TheftCooldown     time.Duration

	CrowdThreshold int
	CrowdCooldown  time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		IntrusionDwell:     3 * time.Second,
		IntrusionCooldown:  30 * time.Second,
		LoiteringThreshold: 60 * time.Second,
		LoiteringMovement:  100,
		LoiteringCooldown:  60 * time.Second,
		TheftLookback:      10,
		TheftRecent:        5,
		TheftNearDistance:  100,
		TheftCooldown:      60 * time.Second,
		CrowdThreshold:     10,
		CrowdCooldown:      30 * time.Second,
	}
}

// FromConfig maps the worker configuration onto rule thresholds.
func FromConfig(cfg *config.Config) Config {
	return Config{
		IntrusionDwell:     cfg.IntrusionDwell,
		IntrusionCooldown:  cfg.IntrusionCooldown,
		LoiteringThreshold: cfg.LoiteringThreshold,
		LoiteringMovement:  cfg.LoiteringMovement,
		LoiteringCooldown:  cfg.LoiteringCooldown,
		TheftLookback:      cfg.TheftLookback,
		TheftRecent:        cfg.TheftRecent,
		TheftNearDistance:  cfg.TheftNearDistance,
		TheftCooldown:      cfg.TheftCooldown,
		CrowdThreshold:     cfg.CrowdThreshold,
		CrowdCooldown:      cfg.CrowdCooldown,
	}
}

// Engine evaluates every detection rule against a registry snapshot and
// zone configuration, deduplicating persistent conditions through per-key
// cooldowns. One engine serves one source and is owned by that source's
// processing loop.
type Engine struct {
	cfg      Config
	sourceID string

	// lastFired maps event key (rule + zone or track) to the time the
	// rule last emitted, implementing the shared cooldown discipline.
	lastFired map[string]time.Time
}

// New creates a rule engine for one source.
func New(sourceID string, cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		sourceID:  sourceID,
		lastFired: make(map[string]time.Time),
	}
}

// Evaluate runs all rules and returns the deduplicated candidates. A rule
// failure is isolated so the remaining rules still evaluate on the same
// frame.
func (e *Engine) Evaluate(reg *tracking.Registry, zones []models.Zone, now time.Time) []models.EventCandidate {
	var monitored, protected, exits []models.Zone
	for _, z := range zones {
		switch z.Kind {
		case models.ZoneProtected:
			protected = append(protected, z)
		case models.ZoneExit:
			exits = append(exits, z)
		default:
			monitored = append(monitored, z)
		}
	}

	var events []models.EventCandidate
	for _, zone := range monitored {
		events = append(events, e.run("intrusion", func() []models.EventCandidate {
			return e.detectIntrusion(reg, zone, now)
		})...)
		events = append(events, e.run("loitering", func() []models.EventCandidate {
			return e.detectLoitering(reg, zone, now)
		})...)
		events = append(events, e.run("crowd", func() []models.EventCandidate {
			return e.detectCrowd(reg, zone, now)
		})...)
	}
	for _, prot := range protected {
		for _, exit := range exits {
			events = append(events, e.run("theft", func() []models.EventCandidate {
				return e.detectTheft(reg, prot, exit, now)
			})...)
		}
	}

	for i := range events {
		events[i].SourceID = e.sourceID
	}
	return events
}

// run isolates one rule invocation so a panicking rule cannot suppress the
// others.
func (e *Engine) run(rule string, fn func() []models.EventCandidate) (events []models.EventCandidate) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("source_id", e.sourceID).
				Str("rule", rule).
				Interface("panic", r).
				Msg("Rule evaluation failed")
			events = nil
		}
	}()
	return fn()
}

// allow reports whether the cooldown window for key has elapsed and, if
// so, marks the key as fired at now.
func (e *Engine) allow(key string, window time.Duration, now time.Time) bool {
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < window {
		return false
	}
	e.lastFired[key] = now
	return true
}
