package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-worker-go/internal/config"
)

// stubDecoder places fake ffmpeg and ffprobe executables first on PATH so
// the read loop exercises real process lifecycles without a video source.
func stubDecoder(t *testing.T, ffmpegScript string) {
	t.Helper()
	dir := t.TempDir()
	probe := "#!/bin/sh\nexit 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(ffmpegScript), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(probe), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func testIngestConfig() *config.Config {
	return &config.Config{
		TargetFPS:        5,
		FrameBufferSize:  2,
		MaxLatency:       5 * time.Second,
		MaxStreamErrors:  100,
		BackoffMin:       100 * time.Millisecond,
		BackoffMax:       60 * time.Second,
		ProbeTimeout:     500 * time.Millisecond,
		WatchdogInterval: time.Hour,
		StopJoinTimeout:  2 * time.Second,
		// 4x2 BGR24 keeps the stub frame at 24 bytes.
		FallbackWidth:  4,
		FallbackHeight: 2,
	}
}

func TestReadLoopBacksOffWhileSourceDown(t *testing.T) {
	// The decode process comes up and exits at once without producing a
	// frame, the shape of a camera that is offline.
	stubDecoder(t, "#!/bin/sh\nexit 1\n")

	in := NewIngestor("cam-down", "rtsp://127.0.0.1/none", testIngestConfig())
	require.True(t, in.Start())
	defer in.Stop()

	time.Sleep(2 * time.Second)
	stats := in.Stats()

	// Exponential delays (100ms, 200ms, 400ms, 800ms, ...) allow only a
	// handful of attempts in two seconds. A constant floor delay would
	// reach nearly twenty.
	require.GreaterOrEqual(t, stats.ReconnectCount, 3)
	require.LessOrEqual(t, stats.ReconnectCount, 6)
	assert.False(t, stats.Connected)
	assert.True(t, stats.LastFrameTime.IsZero())
}

func TestReadLoopResetsBackoffAfterFrame(t *testing.T) {
	// Every connection delivers one full frame before dropping, so each
	// retry restarts the schedule at the minimum delay.
	stubDecoder(t, "#!/bin/sh\nhead -c 24 /dev/zero\nexit 1\n")

	in := NewIngestor("cam-flaky", "rtsp://127.0.0.1/none", testIngestConfig())
	require.True(t, in.Start())
	defer in.Stop()

	time.Sleep(2 * time.Second)
	stats := in.Stats()

	require.GreaterOrEqual(t, stats.ReconnectCount, 8)
	assert.False(t, stats.LastFrameTime.IsZero())
	// Frame delivery keeps the consecutive error count from accumulating.
	assert.LessOrEqual(t, stats.ErrorCount, 1)
}

func TestReadLoopHoldsAfterConsecutiveErrors(t *testing.T) {
	stubDecoder(t, "#!/bin/sh\nexit 1\n")

	cfg := testIngestConfig()
	cfg.MaxStreamErrors = 2
	cfg.BackoffMin = 50 * time.Millisecond
	cfg.BackoffMax = 5 * time.Second

	in := NewIngestor("cam-dead", "rtsp://127.0.0.1/none", cfg)
	require.True(t, in.Start())
	defer in.Stop()

	// After MaxStreamErrors failures the loop holds for the full capped
	// interval, so the attempt count stalls there.
	time.Sleep(1500 * time.Millisecond)
	require.LessOrEqual(t, in.Stats().ReconnectCount, 2)
}
