package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// NATS (event candidates out, detector request/reply)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration

	// Subjects
	EventsSubject       string
	DetectorSubject     string
	ZonesReloadSubject  string
	SourceAssignSubject string
	SourceAssignQueue   string

	// Stream ingestion
	MaxSources        int
	TargetFPS         int
	TargetWidth       int // 0 = native
	TargetHeight      int // 0 = native
	FrameBufferSize   int
	MaxLatency        time.Duration
	MaxStreamErrors   int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	ProbeTimeout      time.Duration
	WatchdogInterval  time.Duration
	StopJoinTimeout   time.Duration
	FallbackWidth     int
	FallbackHeight    int
	FallbackFPS       float64

	// Detector boundary
	DetectorTimeout    time.Duration
	DetectFrameEvery   int // run detection on every Nth frame
	DetectorMaxRetries int

	// Track registry
	MaxTrackAge  time.Duration
	MaxPositions int

	// Rules
	IntrusionDwell     time.Duration
	IntrusionCooldown  time.Duration
	LoiteringThreshold time.Duration
	LoiteringMovement  float64 // pixels
	LoiteringCooldown  time.Duration
	TheftLookback      int // positions considered "recent"
	TheftRecent        int // positions considered "very recent"
	TheftNearDistance  float64
	TheftCooldown      time.Duration
	CrowdThreshold     int
	CrowdCooldown      time.Duration

	// Behavioral anomaly scoring
	AnomalyEnabled   bool
	SequenceLength   int
	SequenceStride   int
	AnomalyThreshold float64
	AnomalyCooldown  time.Duration

	// Zone configuration
	ZonesFile string

	// Graceful shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// NATS
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		// Subjects
		EventsSubject:       getEnv("EVENTS_SUBJECT", "events.candidates"),
		DetectorSubject:     getEnv("DETECTOR_SUBJECT", "detector.infer"),
		ZonesReloadSubject:  getEnv("ZONES_RELOAD_SUBJECT", "zones.reload"),
		SourceAssignSubject: getEnv("SOURCE_ASSIGN_SUBJECT", "sources.assign"),
		SourceAssignQueue:   getEnv("SOURCE_ASSIGN_QUEUE", "vigil-workers"),

		// Stream ingestion
		MaxSources:       getEnvInt("MAX_SOURCES", 10),
		TargetFPS:        getEnvInt("TARGET_FPS", 5),
		TargetWidth:      getEnvInt("TARGET_WIDTH", 0),
		TargetHeight:     getEnvInt("TARGET_HEIGHT", 0),
		FrameBufferSize:  getEnvInt("FRAME_BUFFER_SIZE", 2),
		MaxLatency:       getEnvDuration("MAX_LATENCY", 5*time.Second),
		MaxStreamErrors:  getEnvInt("MAX_STREAM_ERRORS", 5),
		BackoffMin:       getEnvDuration("RECONNECT_BACKOFF_MIN", 1*time.Second),
		BackoffMax:       getEnvDuration("RECONNECT_BACKOFF_MAX", 60*time.Second),
		ProbeTimeout:     getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
		WatchdogInterval: getEnvDuration("WATCHDOG_INTERVAL", 5*time.Second),
		StopJoinTimeout:  getEnvDuration("STOP_JOIN_TIMEOUT", 5*time.Second),
		FallbackWidth:    getEnvInt("FALLBACK_WIDTH", 1280),
		FallbackHeight:   getEnvInt("FALLBACK_HEIGHT", 720),
		FallbackFPS:      getEnvFloat("FALLBACK_FPS", 30.0),

		// Detector boundary
		DetectorTimeout:    getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second),
		DetectFrameEvery:   getEnvInt("DETECT_FRAME_EVERY", 1),
		DetectorMaxRetries: getEnvInt("DETECTOR_MAX_RETRIES", 3),

		// Track registry
		MaxTrackAge:  getEnvDuration("MAX_TRACK_AGE", 30*time.Second),
		MaxPositions: getEnvInt("MAX_POSITIONS", 100),

		// Rules
		IntrusionDwell:     getEnvDuration("INTRUSION_DWELL_TIME", 3*time.Second),
		IntrusionCooldown:  getEnvDuration("INTRUSION_COOLDOWN", 30*time.Second),
		LoiteringThreshold: getEnvDuration("LOITERING_THRESHOLD", 60*time.Second),
		LoiteringMovement:  getEnvFloat("LOITERING_MOVEMENT_THRESHOLD", 100),
		LoiteringCooldown:  getEnvDuration("LOITERING_COOLDOWN", 60*time.Second),
		TheftLookback:      getEnvInt("THEFT_LOOKBACK", 10),
		TheftRecent:        getEnvInt("THEFT_RECENT", 5),
		TheftNearDistance:  getEnvFloat("THEFT_NEAR_DISTANCE", 100),
		TheftCooldown:      getEnvDuration("THEFT_COOLDOWN", 60*time.Second),
		CrowdThreshold:     getEnvInt("CROWD_THRESHOLD", 10),
		CrowdCooldown:      getEnvDuration("CROWD_COOLDOWN", 30*time.Second),

		// Behavioral anomaly scoring
		AnomalyEnabled:   getEnvBool("ANOMALY_ENABLED", true),
		SequenceLength:   getEnvInt("SEQUENCE_LENGTH", 24),
		SequenceStride:   getEnvInt("SEQUENCE_STRIDE", 12),
		AnomalyThreshold: getEnvFloat("ANOMALY_THRESHOLD", 0.7),
		AnomalyCooldown:  getEnvDuration("ANOMALY_COOLDOWN", 10*time.Second),

		// Zone configuration
		ZonesFile: getEnv("ZONES_FILE", "zones.json"),

		// Graceful shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
