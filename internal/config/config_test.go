package config

import (
	"os"
	"testing"
	"time"
)

var envVars = []string{
	"SERVICE_PRINCIPAL", "GRPC_PORT", "GATEWAY_HOST", "GATEWAY_PORT",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
	"STT_INTERIM_RESULTS", "STT_AUDIO_ENCODING", "STT_MODEL",
	"SESSION_MAX_CONNECTION_DURATION", "SESSION_SWITCHOVER_BUFFER", "SESSION_STOP_WORD",
	"SESSION_RETRY_BUDGET", "SESSION_RETRY_WINDOW",
	"AUDIO_SOURCE", "AUDIO_CHUNK_DURATION",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
	"LOG_LEVEL", "METRICS_ADDR",
}

func TestLoad_Defaults(t *testing.T) {
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-live-transcription" {
		t.Errorf("expected default principal 'svc-live-transcription', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}

	// Gateway defaults
	if cfg.Gateway.Addr() != "localhost:8765" {
		t.Errorf("expected default gateway addr 'localhost:8765', got %s", cfg.Gateway.Addr())
	}

	// STT defaults
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.STT.InterimResults)
	}
	if cfg.STT.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.STT.AudioEncoding)
	}
	if cfg.STT.Model != "latest_long" {
		t.Errorf("expected default model 'latest_long', got %s", cfg.STT.Model)
	}

	// Session defaults
	if cfg.Session.MaxConnectionDuration != 240*time.Second {
		t.Errorf("expected default max connection duration 240s, got %v", cfg.Session.MaxConnectionDuration)
	}
	if cfg.Session.StopWord != "exit" {
		t.Errorf("expected default stop word 'exit', got %s", cfg.Session.StopWord)
	}
	if cfg.Session.RetryBudget != 5 {
		t.Errorf("expected default retry budget 5, got %d", cfg.Session.RetryBudget)
	}

	// Audio defaults
	if cfg.Audio.ChunkDuration != 100*time.Millisecond {
		t.Errorf("expected default chunk duration 100ms, got %v", cfg.Audio.ChunkDuration)
	}

	// Kafka defaults
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka to be disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no default brokers, got %v", cfg.Kafka.Brokers)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	custom := map[string]string{
		"GATEWAY_HOST":                    "0.0.0.0",
		"GATEWAY_PORT":                    "9000",
		"STT_PROVIDER":                    "google",
		"STT_LANGUAGE_CODE":               "es-ES",
		"STT_SAMPLE_RATE_HZ":              "8000",
		"STT_INTERIM_RESULTS":             "false",
		"SESSION_MAX_CONNECTION_DURATION": "5m",
		"SESSION_STOP_WORD":               "stop",
		"KAFKA_BROKERS":                   "k1:9092, k2:9092",
		"LOG_LEVEL":                       "debug",
	}
	for k, v := range custom {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range custom {
			os.Unsetenv(k)
		}
	}()

	cfg := Load()

	if cfg.Gateway.Addr() != "0.0.0.0:9000" {
		t.Errorf("expected gateway addr '0.0.0.0:9000', got %s", cfg.Gateway.Addr())
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != false {
		t.Errorf("expected interim results false, got %v", cfg.STT.InterimResults)
	}
	if cfg.Session.MaxConnectionDuration != 5*time.Minute {
		t.Errorf("expected max connection duration 5m, got %v", cfg.Session.MaxConnectionDuration)
	}
	if cfg.Session.StopWord != "stop" {
		t.Errorf("expected stop word 'stop', got %s", cfg.Session.StopWord)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected brokers [k1:9092 k2:9092], got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("STT_INTERIM_RESULTS", "invalid")
	os.Setenv("SESSION_MAX_CONNECTION_DURATION", "invalid")
	os.Setenv("SESSION_RETRY_BUDGET", "invalid")

	defer func() {
		os.Unsetenv("STT_SAMPLE_RATE_HZ")
		os.Unsetenv("STT_INTERIM_RESULTS")
		os.Unsetenv("SESSION_MAX_CONNECTION_DURATION")
		os.Unsetenv("SESSION_RETRY_BUDGET")
	}()

	cfg := Load()

	// Should fall back to defaults on parse errors
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.STT.InterimResults)
	}
	if cfg.Session.MaxConnectionDuration != 240*time.Second {
		t.Errorf("expected default max connection duration on invalid input, got %v", cfg.Session.MaxConnectionDuration)
	}
	if cfg.Session.RetryBudget != 5 {
		t.Errorf("expected default retry budget on invalid input, got %d", cfg.Session.RetryBudget)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	key := "TEST_LIST_VAR"
	os.Setenv(key, " a, ,b ,c")
	defer os.Unsetenv(key)

	got := envOrDefaultList(key, nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected [a b c], got %v", got)
	}
}
