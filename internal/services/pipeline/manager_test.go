package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-worker-go/internal/config"
	"vigil-worker-go/internal/ingest"
	"vigil-worker-go/internal/models"
	"vigil-worker-go/internal/services/detection"
)

// testManager builds a manager with one registered but unstarted pipeline.
func testManager(cfg *config.Config) (*Manager, *Pipeline) {
	det := &fakeDetector{resp: &detection.Response{}}
	pub := &fakePublisher{}
	m := NewManager(cfg, ingest.NewPool(cfg), det, pub,
		&config.ZoneSet{Sources: map[string][]models.Zone{}})
	p := New(cfg, "cam-1", nil, det, pub, nil)
	m.pipelines["cam-1"] = p
	return m, p
}

func TestHandleZonesReloadPushesZonesToPipelines(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ZonesFile = filepath.Join(t.TempDir(), "zones.json")
	body := `{"sources": {"cam-1": [
		{"id": "lobby", "kind": "monitored", "region": {"x1": 0, "y1": 0, "x2": 100, "y2": 100}}
	]}}`
	require.NoError(t, os.WriteFile(cfg.ZonesFile, []byte(body), 0o644))

	m, p := testManager(cfg)
	require.Empty(t, p.zonesSnapshot())

	m.HandleZonesReload(nil)

	zones := p.zonesSnapshot()
	require.Len(t, zones, 1)
	assert.Equal(t, "lobby", zones[0].ID)
}

func TestHandleZonesReloadKeepsOldZonesOnBadFile(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.ZonesFile = filepath.Join(t.TempDir(), "zones.json")
	require.NoError(t, os.WriteFile(cfg.ZonesFile, []byte("{not json"), 0o644))

	m, p := testManager(cfg)
	p.SetZones([]models.Zone{{ID: "plaza", Region: models.Rect{X2: 10, Y2: 10}}})

	m.HandleZonesReload(nil)

	zones := p.zonesSnapshot()
	require.Len(t, zones, 1)
	assert.Equal(t, "plaza", zones[0].ID)
}

func TestHandleSourceAssignRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", "{nope"},
		{"missing url", `{"id": "cam-9"}`},
		{"missing id", `{"url": "rtsp://example/9"}`},
		{"duplicate id", `{"id": "cam-1", "url": "rtsp://example/1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := testManager(testPipelineConfig())
			m.HandleSourceAssign([]byte(tt.payload))
			assert.Empty(t, m.SourceIDs())
		})
	}
}
