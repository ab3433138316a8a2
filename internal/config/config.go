// Package config loads the gateway's process configuration from the
// environment, with sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the root configuration object.
type Configuration struct {
	Service       ServiceConfig
	EPD           EPDConfig
	STT           STTConfig
	SegmentLimits SegmentLimitsConfig
	FSM           FSMConfig
	Dispatch      DispatchConfig
	Drain         DrainConfig
	Observability ObservabilityConfig
	Kafka         KafkaConfig
}

// ServiceConfig holds process-identity settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
	AdminPort string
}

// EPDConfig holds the End-Point-Detection WebSocket client settings.
type EPDConfig struct {
	URL               string
	ReconnectInterval time.Duration
	HeartbeatInterval time.Duration
}

// STTConfig holds the batch STT client settings.
type STTConfig struct {
	Provider      string // "http" or "google"
	BatchURL      string
	SingleURL     string
	Token         string
	Codec         string // "wav" or "mp3"
	MP3EncoderBin string
	TempDir       string
	WAVDir        string
	ResultDir     string
	LanguageCode  string
}

// SegmentLimitsConfig bounds a single utterance's resource usage.
type SegmentLimitsConfig struct {
	MaxAudioBytes           int64
	MaxUtteranceDuration    time.Duration
	MaxPartialsPerUtterance int
}

// FSMConfig exposes the segmentation constants as named, tunable values.
type FSMConfig struct {
	PreRollChunks   int64
	StepChunks      int64
	LongPauseChunks int64
}

// DispatchConfig controls the batch dispatcher's tick cadence and batch size.
type DispatchConfig struct {
	TickInterval time.Duration
	BatchSize    int
}

// DrainConfig controls the TURN_END drain protocol's polling.
type DrainConfig struct {
	IdleInterval time.Duration
	MaxWait      time.Duration
}

// ObservabilityConfig holds logging/metrics settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// KafkaConfig holds the event side-channel settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

// Load reads the process environment and returns a fully populated
// Configuration, falling back to defaults for anything unset or unparsable.
func Load() *Configuration {
	servicePrincipal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-gateway")

	return &Configuration{
		Service: ServiceConfig{
			Principal: servicePrincipal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			AdminPort: envOrDefault("ADMIN_PORT", "9090"),
		},
		EPD: EPDConfig{
			URL:               envOrDefault("WS_URL", "ws://localhost:8100/epd"),
			ReconnectInterval: envOrDefaultDuration("WS_RECONNECT_INTERVAL", 3*time.Second),
			HeartbeatInterval: envOrDefaultDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "http"),
			BatchURL:      envOrDefault("SPEECH_API_BATCH_URL", "http://localhost:8200/v1/batch"),
			SingleURL:     envOrDefault("SPEECH_API_URL", "http://localhost:8200/v1/recognize"),
			Token:         os.Getenv("SPEECH_API_TOKEN"),
			Codec:         envOrDefault("STT_CODEC", "wav"),
			MP3EncoderBin: os.Getenv("STT_MP3_ENCODER_PATH"),
			TempDir:       envOrDefault("TEMP_DIR", "/tmp/speech-gateway"),
			WAVDir:        envOrDefault("WAV_DIR", "/tmp/speech-gateway/wav"),
			ResultDir:     envOrDefault("RESULT_DIR", "/tmp/speech-gateway/result"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
		},
		SegmentLimits: SegmentLimitsConfig{
			MaxAudioBytes:           envOrDefaultInt64("SESSION_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxUtteranceDuration:    envOrDefaultDuration("SESSION_MAX_UTTERANCE_DURATION", 5*time.Minute),
			MaxPartialsPerUtterance: envOrDefaultInt("SESSION_MAX_PARTIALS_PER_UTTERANCE", 500),
		},
		FSM: FSMConfig{
			PreRollChunks:   envOrDefaultInt64("FSM_PRE_ROLL_CHUNKS", 4),
			StepChunks:      envOrDefaultInt64("FSM_STEP_CHUNKS", 5),
			LongPauseChunks: envOrDefaultInt64("FSM_LONG_PAUSE_CHUNKS", 50),
		},
		Dispatch: DispatchConfig{
			TickInterval: envOrDefaultDuration("DISPATCH_TICK_INTERVAL", 500*time.Millisecond),
			BatchSize:    envOrDefaultInt("DISPATCH_BATCH_SIZE", 16),
		},
		Drain: DrainConfig{
			IdleInterval: envOrDefaultDuration("DRAIN_IDLE_INTERVAL", 500*time.Millisecond),
			MaxWait:      envOrDefaultDuration("DRAIN_MAX_WAIT", 25*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "gateway.delivery.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "gateway.delivery.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", servicePrincipal),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
