package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// StreamInfo is the geometry discovered by probing a stream.
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64
}

// probeStream runs a short ffprobe invocation against the source URL to
// discover native resolution and frame rate before full decoding begins.
func probeStream(ctx context.Context, url string) (StreamInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-rtsp_transport", "tcp",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (StreamInfo, error) {
	var raw struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return StreamInfo{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	for _, s := range raw.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if s.Width == 0 || s.Height == 0 {
			continue
		}
		return StreamInfo{
			Width:  s.Width,
			Height: s.Height,
			FPS:    parseFrameRate(s.RFrameRate),
		}, nil
	}
	return StreamInfo{}, fmt.Errorf("no usable video stream in probe output")
}

// parseFrameRate parses ffprobe's rational rate format, e.g. "30/1" or
// "30000/1001". Returns 0 when the value is unusable.
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			return f
		}
		return 0
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// frameSkip computes the decimation factor needed to downsample a native
// frame rate to the target rate without re-encoding.
func frameSkip(nativeFPS float64, targetFPS int) int {
	if nativeFPS <= 0 || targetFPS <= 0 {
		return 1
	}
	skip := int(nativeFPS/float64(targetFPS) + 0.5)
	if skip < 1 {
		return 1
	}
	return skip
}
