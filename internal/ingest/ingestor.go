package ingest

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vigil-worker-go/internal/config"
)

// Frame is one decoded BGR24 frame from a source.
type Frame struct {
	SourceID  string
	FrameID   int64
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Stats is a read-only diagnostics snapshot of one ingestor.
type Stats struct {
	SourceID       string    `json:"source_id"`
	Connected      bool      `json:"connected"`
	Healthy        bool      `json:"healthy"`
	Running        bool      `json:"running"`
	ReconnectCount int       `json:"reconnect_count"`
	ErrorCount     int       `json:"error_count"`
	QueueSize      int       `json:"queue_size"`
	StreamWidth    int       `json:"stream_width"`
	StreamHeight   int       `json:"stream_height"`
	StreamFPS      float64   `json:"stream_fps"`
	TargetFPS      int       `json:"target_fps"`
	LastFrameTime  time.Time `json:"last_frame_time"`
}

// Ingestor turns one unreliable network video source into a steady,
// rate-controlled sequence of decoded frames. It spawns an external ffmpeg
// decode process, reconnects with exponential backoff forever, and keeps a
// small bounded frame buffer where the newest frames win.
type Ingestor struct {
	sourceID string
	url      string
	cfg      *config.Config

	queue *frameQueue

	mu             sync.RWMutex
	running        bool
	connected      bool
	streamInfo     StreamInfo
	errorCount     int
	reconnectCount int
	lastFrameTime  time.Time
	cmd            *exec.Cmd

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewIngestor creates an ingestor for one source. Call Start to begin.
func NewIngestor(sourceID, url string, cfg *config.Config) *Ingestor {
	return &Ingestor{
		sourceID: sourceID,
		url:      url,
		cfg:      cfg,
		queue:    newFrameQueue(cfg.FrameBufferSize),
	}
}

// Start launches the read and watchdog workers. Returns false if the
// ingestor is already running.
func (in *Ingestor) Start() bool {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		log.Warn().Str("source_id", in.sourceID).Msg("Ingestor already running")
		return false
	}
	in.running = true
	in.errorCount = 0
	in.stop = make(chan struct{})
	in.mu.Unlock()

	in.wg.Add(2)
	go in.readLoop()
	go in.watchdogLoop()

	log.Info().Str("source_id", in.sourceID).Str("url", in.url).Msg("Stream ingestor started")
	return true
}

// Stop signals both workers to end and joins them with a bounded timeout.
// If the read worker is stuck in blocking process I/O it kills the decode
// process to unblock it. Always succeeds.
func (in *Ingestor) Stop() {
	in.mu.Lock()
	if !in.running {
		in.mu.Unlock()
		return
	}
	in.running = false
	in.connected = false
	close(in.stop)
	in.mu.Unlock()

	done := make(chan struct{})
	go func() {
		in.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(in.cfg.StopJoinTimeout):
		log.Warn().Str("source_id", in.sourceID).Msg("Workers did not exit in time, killing decode process")
		in.killProcess()
		select {
		case <-done:
		case <-time.After(in.cfg.StopJoinTimeout):
			log.Error().Str("source_id", in.sourceID).Msg("Worker join timed out after process kill")
		}
	}

	log.Info().Str("source_id", in.sourceID).Msg("Stream ingestor stopped")
}

// GetFrame returns the next buffered frame, or nil after timeout.
func (in *Ingestor) GetFrame(timeout time.Duration) *Frame {
	in.mu.RLock()
	stop := in.stop
	running := in.running
	in.mu.RUnlock()
	if !running {
		return in.queue.Pop()
	}
	return in.queue.PopWait(timeout, stop)
}

// Frames returns a lazy, infinite frame channel that survives reconnects
// and closes only once the ingestor is stopped.
func (in *Ingestor) Frames(timeout time.Duration) <-chan *Frame {
	out := make(chan *Frame)
	in.mu.RLock()
	stop := in.stop
	in.mu.RUnlock()

	go func() {
		defer close(out)
		for {
			select {
			case <-stop:
				return
			default:
			}
			frame := in.queue.PopWait(timeout, stop)
			if frame == nil {
				continue
			}
			select {
			case out <- frame:
			case <-stop:
				return
			}
		}
	}()
	return out
}

// Healthy reports whether the ingestor is running, connected, and has
// delivered a frame within the configured max latency. Purely
// observational; restart policy lives in the read loop.
func (in *Ingestor) Healthy() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if !in.running || !in.connected {
		return false
	}
	if in.lastFrameTime.IsZero() {
		return false
	}
	return time.Since(in.lastFrameTime) <= in.cfg.MaxLatency
}

// Stats returns a diagnostics snapshot for monitoring.
func (in *Ingestor) Stats() Stats {
	healthy := in.Healthy()
	in.mu.RLock()
	defer in.mu.RUnlock()
	return Stats{
		SourceID:       in.sourceID,
		Connected:      in.connected,
		Healthy:        healthy,
		Running:        in.running,
		ReconnectCount: in.reconnectCount,
		ErrorCount:     in.errorCount,
		QueueSize:      in.queue.Len(),
		StreamWidth:    in.streamInfo.Width,
		StreamHeight:   in.streamInfo.Height,
		StreamFPS:      in.streamInfo.FPS,
		TargetFPS:      in.cfg.TargetFPS,
		LastFrameTime:  in.lastFrameTime,
	}
}

// readLoop is the connection supervisor: probe, decode, and on any failure
// back off exponentially (1s doubling to the cap) and retry forever. The
// schedule resets only after a connection delivers at least one frame.
// After MaxStreamErrors consecutive failures it waits the full capped
// interval and resets the error counter. The ingestor never gives up
// permanently.
func (in *Ingestor) readLoop() {
	defer in.wg.Done()

	backoff := in.cfg.BackoffMin

	for {
		select {
		case <-in.stop:
			return
		default:
		}

		in.ensureStreamInfo()

		frames, err := in.decode()
		if frames > 0 {
			// A connection counts as successful only once it has produced a
			// frame. ffmpeg starting and exiting straight away on a dead
			// source must keep the backoff schedule growing.
			backoff = in.cfg.BackoffMin
			in.mu.Lock()
			in.errorCount = 0
			in.mu.Unlock()
		}
		if err == nil {
			// Clean exit only happens on stop.
			return
		}

		in.mu.Lock()
		in.connected = false
		in.errorCount++
		in.reconnectCount++
		errs := in.errorCount
		reconnects := in.reconnectCount
		in.mu.Unlock()

		log.Error().
			Err(err).
			Str("source_id", in.sourceID).
			Int("error_count", errs).
			Int("reconnect_count", reconnects).
			Msg("Stream read failed")

		if errs >= in.cfg.MaxStreamErrors {
			log.Warn().
				Str("source_id", in.sourceID).
				Dur("wait", in.cfg.BackoffMax).
				Msg("Consecutive error limit reached, holding before retrying")
			if !in.sleep(in.cfg.BackoffMax) {
				return
			}
			in.mu.Lock()
			in.errorCount = 0
			in.mu.Unlock()
			backoff = in.cfg.BackoffMin
			continue
		}

		log.Info().
			Str("source_id", in.sourceID).
			Dur("backoff", backoff).
			Msg("Reconnecting after backoff")
		if !in.sleep(backoff) {
			return
		}
		backoff = nextBackoff(backoff, in.cfg.BackoffMax)
	}
}

// ensureStreamInfo probes the source geometry once per connection cycle,
// falling back to a safe default when probing fails.
func (in *Ingestor) ensureStreamInfo() {
	in.mu.RLock()
	known := in.streamInfo.Width > 0 && in.streamInfo.Height > 0
	in.mu.RUnlock()
	if known {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), in.cfg.ProbeTimeout)
	defer cancel()

	info, err := probeStream(ctx, in.url)
	if err != nil {
		log.Warn().
			Err(err).
			Str("source_id", in.sourceID).
			Int("fallback_width", in.cfg.FallbackWidth).
			Int("fallback_height", in.cfg.FallbackHeight).
			Msg("Stream probe failed, using fallback geometry")
		info = StreamInfo{
			Width:  in.cfg.FallbackWidth,
			Height: in.cfg.FallbackHeight,
			FPS:    in.cfg.FallbackFPS,
		}
	} else {
		log.Info().
			Str("source_id", in.sourceID).
			Int("width", info.Width).
			Int("height", info.Height).
			Float64("fps", info.FPS).
			Msg("Stream geometry detected")
	}

	in.mu.Lock()
	in.streamInfo = info
	in.mu.Unlock()
}

// decodeArgs builds the ffmpeg invocation that emits raw BGR24 frames on
// stdout with audio disabled.
func decodeArgs(url string, width, height int, scale bool) []string {
	args := []string{
		"-rtsp_transport", "tcp",
		"-i", url,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
	}
	if scale {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	return append(args, "-an", "-")
}

// decode launches one long-lived ffmpeg process and pumps its output into
// the frame queue until the connection drops or the ingestor stops. It
// returns the number of full frames read from this connection. A nil
// error means stop was requested; every other outcome is an error the
// supervisor retries.
func (in *Ingestor) decode() (int64, error) {
	in.mu.RLock()
	info := in.streamInfo
	in.mu.RUnlock()

	width, height := info.Width, info.Height
	scale := false
	if in.cfg.TargetWidth > 0 && in.cfg.TargetHeight > 0 {
		width, height = in.cfg.TargetWidth, in.cfg.TargetHeight
		scale = true
	}
	skip := frameSkip(info.FPS, in.cfg.TargetFPS)

	cmd := exec.Command("ffmpeg", decodeArgs(in.url, width, height, scale)...)
	// The diagnostic stream must be discarded unread: draining stdout and
	// stderr from the same goroutine can deadlock against the frame pipe.
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting ffmpeg: %w", err)
	}

	in.mu.Lock()
	in.cmd = cmd
	in.mu.Unlock()

	// Kill the process as soon as stop is requested so a read blocked on
	// process I/O unblocks within the join timeout.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-in.stop:
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	log.Info().
		Str("source_id", in.sourceID).
		Int("width", width).
		Int("height", height).
		Int("frame_skip", skip).
		Msg("Decode process started")

	defer func() {
		in.mu.Lock()
		in.cmd = nil
		in.connected = false
		in.mu.Unlock()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}()

	frameSize := width * height * 3
	buf := make([]byte, frameSize)
	var captured, delivered int64

	for {
		select {
		case <-in.stop:
			return captured, nil
		default:
		}

		if _, err := io.ReadFull(stdout, buf); err != nil {
			select {
			case <-in.stop:
				return captured, nil
			default:
			}
			return captured, fmt.Errorf("short frame read after %d frames: %w", captured, err)
		}

		captured++
		if captured == 1 {
			// The source is only considered connected once it has produced
			// a frame, not when the decode process comes up.
			in.mu.Lock()
			in.connected = true
			in.mu.Unlock()
		}
		if skip > 1 && captured%int64(skip) != 0 {
			continue
		}

		frame := &Frame{
			SourceID:  in.sourceID,
			FrameID:   captured,
			Data:      append([]byte(nil), buf...),
			Width:     width,
			Height:    height,
			Timestamp: time.Now(),
		}
		if in.queue.Push(frame) {
			log.Debug().Str("source_id", in.sourceID).Msg("Frame buffer full, evicted oldest frame")
		}
		delivered++

		in.mu.Lock()
		in.lastFrameTime = frame.Timestamp
		in.mu.Unlock()

		if delivered%200 == 0 {
			log.Debug().
				Str("source_id", in.sourceID).
				Int64("captured", captured).
				Int64("delivered", delivered).
				Msg("Frame pipeline progress")
		}
	}
}

// watchdogLoop periodically reports unhealthy state and trims the queue
// if it somehow exceeds twice its capacity. It never restarts
// connections; that is the read loop's job.
func (in *Ingestor) watchdogLoop() {
	defer in.wg.Done()

	ticker := time.NewTicker(in.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-in.stop:
			return
		case <-ticker.C:
			if !in.Healthy() {
				log.Warn().
					Str("source_id", in.sourceID).
					Interface("stats", in.Stats()).
					Msg("Watchdog: source unhealthy")
			}
			if in.queue.Len() > in.cfg.FrameBufferSize*2 {
				dropped := in.queue.Trim(in.cfg.FrameBufferSize)
				log.Warn().
					Str("source_id", in.sourceID).
					Int("dropped", dropped).
					Msg("Watchdog: trimmed oversized frame buffer")
			}
		}
	}
}

// sleep waits d, returning false if the ingestor was stopped first.
func (in *Ingestor) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-in.stop:
		return false
	}
}

func (in *Ingestor) killProcess() {
	in.mu.RLock()
	cmd := in.cmd
	in.mu.RUnlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
