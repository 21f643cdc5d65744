package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration, loaded from the environment.
type Configuration struct {
	Service       ServiceConfig
	Gateway       GatewayConfig
	STT           STTConfig
	Session       SessionConfig
	Audio         AudioConfig
	Broadcast     BroadcastConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	GRPCPort  string
}

// GatewayConfig is where subscribers connect.
type GatewayConfig struct {
	Host string
	Port string
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return g.Host + ":" + g.Port
}

type STTConfig struct {
	Provider       string // google, mock
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	Model          string
	Punctuation    bool
	Endpoint       string // optional Google API endpoint override
}

// SessionConfig bounds the session manager.
type SessionConfig struct {
	MaxConnectionDuration time.Duration
	SwitchoverBuffer      int
	StopWord              string
	RetryBudget           int
	RetryWindow           time.Duration
	DrainTimeout          time.Duration
	EventBuffer           int
}

type AudioConfig struct {
	Source        string // command, stdin, file, silence
	Command       string
	Path          string
	ChunkDuration time.Duration
}

type BroadcastConfig struct {
	SubscriberBuffer int
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration from environment variables. Values that fail to
// parse fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-live-transcription")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
		},
		Gateway: GatewayConfig{
			Host: envOrDefault("GATEWAY_HOST", "localhost"),
			Port: envOrDefault("GATEWAY_PORT", "8765"),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Model:          envOrDefault("STT_MODEL", "latest_long"),
			Punctuation:    envOrDefaultBool("STT_AUTOMATIC_PUNCTUATION", true),
			Endpoint:       envOrDefault("STT_ENDPOINT", ""),
		},
		Session: SessionConfig{
			MaxConnectionDuration: envOrDefaultDuration("SESSION_MAX_CONNECTION_DURATION", 240*time.Second),
			SwitchoverBuffer:      envOrDefaultInt("SESSION_SWITCHOVER_BUFFER", 50),
			StopWord:              envOrDefault("SESSION_STOP_WORD", "exit"),
			RetryBudget:           envOrDefaultInt("SESSION_RETRY_BUDGET", 5),
			RetryWindow:           envOrDefaultDuration("SESSION_RETRY_WINDOW", time.Minute),
			DrainTimeout:          envOrDefaultDuration("SESSION_DRAIN_TIMEOUT", 2*time.Second),
			EventBuffer:           envOrDefaultInt("SESSION_EVENT_BUFFER", 64),
		},
		Audio: AudioConfig{
			Source:        envOrDefault("AUDIO_SOURCE", "command"),
			Command:       envOrDefault("AUDIO_COMMAND", ""),
			Path:          envOrDefault("AUDIO_PATH", ""),
			ChunkDuration: envOrDefaultDuration("AUDIO_CHUNK_DURATION", 100*time.Millisecond),
		},
		Broadcast: BroadcastConfig{
			SubscriberBuffer: envOrDefaultInt("BROADCAST_SUBSCRIBER_BUFFER", 32),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "transcription.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "transcription.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
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

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
