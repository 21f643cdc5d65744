// Package session manages a transcription session: one continuous stream of
// transcription events built from a sequence of time-limited backend
// connections fed by a single audio source.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-transcription-service/internal/config"
	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/connection"
	"live-transcription-service/internal/service/stt"
)

// Config bounds session behavior.
type Config struct {
	Recognition stt.RecognitionConfig
	// MaxConnectionDuration applies when the backend does not advertise a limit.
	MaxConnectionDuration time.Duration
	SwitchoverBuffer      int
	StopWord              string // empty disables
	RetryBudget           int
	RetryWindow           time.Duration
	DrainTimeout          time.Duration
	EventBuffer           int
}

// DefaultConfig returns the defaults used by the service.
func DefaultConfig() Config {
	return Config{
		Recognition:           stt.DefaultRecognitionConfig(),
		MaxConnectionDuration: stt.DefaultMaxStreamDuration,
		SwitchoverBuffer:      50,
		StopWord:              "exit",
		RetryBudget:           5,
		RetryWindow:           time.Minute,
		DrainTimeout:          2 * time.Second,
		EventBuffer:           64,
	}
}

// ConfigFrom builds a session config from the service configuration.
func ConfigFrom(cfg *config.Configuration) Config {
	return Config{
		Recognition: stt.RecognitionConfig{
			Encoding:                   cfg.STT.AudioEncoding,
			SampleRateHz:               cfg.STT.SampleRateHz,
			LanguageCode:               cfg.STT.LanguageCode,
			MaxAlternatives:            1,
			EnableAutomaticPunctuation: cfg.STT.Punctuation,
			Model:                      cfg.STT.Model,
			InterimResults:             cfg.STT.InterimResults,
		},
		MaxConnectionDuration: cfg.Session.MaxConnectionDuration,
		SwitchoverBuffer:      cfg.Session.SwitchoverBuffer,
		StopWord:              cfg.Session.StopWord,
		RetryBudget:           cfg.Session.RetryBudget,
		RetryWindow:           cfg.Session.RetryWindow,
		DrainTimeout:          cfg.Session.DrainTimeout,
		EventBuffer:           cfg.Session.EventBuffer,
	}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics replaces the default metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager owns the audio source and runs at most one session at a time.
type Manager struct {
	backend stt.Backend
	source  audio.Source
	cfg     Config
	clock   Clock
	metrics *metrics.Metrics

	mu     sync.Mutex
	active *Session
}

// NewManager creates a session manager.
func NewManager(backend stt.Backend, source audio.Source, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		source:  source,
		cfg:     cfg,
		clock:   realClock{},
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Active returns the running session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Start claims the audio source and begins a session. The session runs until
// Stop, the stop word, the end of audio input, cancellation of ctx or a fatal
// error.
func (m *Manager) Start(ctx context.Context, languageCode string, sampleRateHz int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyActive
	}

	rc := m.cfg.Recognition
	if languageCode != "" {
		rc.LanguageCode = languageCode
	}
	if sampleRateHz > 0 {
		rc.SampleRateHz = sampleRateHz
	}

	ctx, cancel := context.WithCancel(ctx)

	chunks, err := m.source.Open(ctx)
	if err != nil {
		cancel()
		m.metrics.SessionsFailed.WithLabelValues(KindAudioSource).Inc()
		return nil, &FatalError{
			Kind: KindAudioSource,
			At:   m.clock.Now(),
			Err:  fmt.Errorf("%w: %w", ErrAudioSourceUnavailable, err),
		}
	}

	maxDuration := m.cfg.MaxConnectionDuration
	if maxDuration <= 0 {
		maxDuration = stt.DefaultMaxStreamDuration
	}

	id := uuid.NewString()
	eventBuffer := m.cfg.EventBuffer
	if eventBuffer < 1 {
		eventBuffer = 1
	}

	s := &Session{
		id:          id,
		startTime:   m.clock.Now(),
		recognition: rc,
		manager:     m,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan models.TranscriptionEvent, eventBuffer),
		done:        make(chan struct{}),
		queue:       newChunkQueue(m.cfg.SwitchoverBuffer),
		connIds:     connection.NewGenerator(),
		budget:      newRetryBudget(m.cfg.RetryBudget, m.cfg.RetryWindow),
		maxDuration: stt.MaxStreamDuration(m.backend, maxDuration),
		log:         logging.WithSession(id, rc.LanguageCode),
	}
	s.active.Store(true)
	m.active = s
	m.metrics.RecordSessionStart()

	s.log.Info().
		Str("sttProvider", m.backend.Name()).
		Int("sampleRateHz", rc.SampleRateHz).
		Dur("maxConnectionDuration", s.maxDuration).
		Msg("Session started")

	go s.ingest(chunks)
	go s.run()

	return s, nil
}

// release is called by a session when it ends.
func (m *Manager) release(s *Session) {
	if err := m.source.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close audio source")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
	}
}
