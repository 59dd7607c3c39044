package config

import (
	"encoding/json"
	"fmt"
	"os"

	"vigil-worker-go/internal/models"
)

// ZoneSet is the on-disk zone configuration: zones grouped per source id.
type ZoneSet struct {
	Sources map[string][]models.Zone `json:"sources"`
}

// LoadZones reads the zone configuration file. A missing file is not an
// error; it yields an empty set so a worker can start before zones are
// provisioned.
func LoadZones(path string) (*ZoneSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ZoneSet{Sources: map[string][]models.Zone{}}, nil
		}
		return nil, fmt.Errorf("reading zones file %s: %w", path, err)
	}

	var zs ZoneSet
	if err := json.Unmarshal(data, &zs); err != nil {
		return nil, fmt.Errorf("parsing zones file %s: %w", path, err)
	}
	if zs.Sources == nil {
		zs.Sources = map[string][]models.Zone{}
	}

	for sourceID, zones := range zs.Sources {
		for _, z := range zones {
			if err := z.Validate(); err != nil {
				return nil, fmt.Errorf("source %s: %w", sourceID, err)
			}
		}
	}
	return &zs, nil
}

// ForSource returns the zones configured for one source id.
func (zs *ZoneSet) ForSource(id string) []models.Zone {
	if zs == nil {
		return nil
	}
	return zs.Sources[id]
}
