package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-worker-go/internal/models"
)

func writeZones(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zones.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadZones(t *testing.T) {
	path := writeZones(t, `{
		"sources": {
			"cam-1": [
				{"id": "lobby", "name": "Lobby", "kind": "monitored",
				 "region": {"x1": 0, "y1": 0, "x2": 640, "y2": 480},
				 "schedule": {"windows": [{"days": ["mon"], "start": "20:00", "end": "06:00"}]}},
				{"id": "shelf", "kind": "protected",
				 "region": {"x1": 10, "y1": 10, "x2": 100, "y2": 100}}
			]
		}
	}`)

	zs, err := LoadZones(path)
	require.NoError(t, err)

	zones := zs.ForSource("cam-1")
	require.Len(t, zones, 2)
	assert.Equal(t, "lobby", zones[0].ID)
	assert.Equal(t, models.ZoneMonitored, zones[0].Kind)
	require.NotNil(t, zones[0].Schedule)
	assert.Equal(t, models.ZoneProtected, zones[1].Kind)

	assert.Empty(t, zs.ForSource("cam-2"))
}

func TestLoadZonesMissingFileIsEmpty(t *testing.T) {
	zs, err := LoadZones(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, zs.ForSource("cam-1"))
}

func TestLoadZonesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{`},
		{"zone without id", `{"sources": {"cam-1": [{"region": {"x1": 0, "y1": 0, "x2": 1, "y2": 1}}]}}`},
		{"degenerate region", `{"sources": {"cam-1": [{"id": "z", "region": {"x1": 5, "y1": 0, "x2": 1, "y2": 1}}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadZones(writeZones(t, tt.content))
			assert.Error(t, err)
		})
	}
}
