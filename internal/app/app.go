// Package app wires the live transcription service together: audio source,
// recognition backend, session manager, broadcaster, subscriber gateway and
// the ops servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	grpcapi "live-transcription-service/internal/api/grpc"
	"live-transcription-service/internal/config"
	"live-transcription-service/internal/events"
	"live-transcription-service/internal/gateway"
	apihttp "live-transcription-service/internal/http"
	"live-transcription-service/internal/observability"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/broadcast"
	"live-transcription-service/internal/service/session"
	"live-transcription-service/internal/service/stt"
	"live-transcription-service/internal/service/stt/google"
	"live-transcription-service/internal/service/stt/mock"
)

var errNoSession = errors.New("no active session")

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	metrics     *metrics.Metrics
	backend     stt.Backend
	manager     *session.Manager
	broadcaster *broadcast.Broadcaster
	gateway     *gateway.Gateway
	publisher   *events.Publisher
	obs         *observability.Server
	grpc        *grpcapi.Server
	http        *http.Server

	gatewayLis net.Listener
	grpcLis    net.Listener

	session   *session.Session
	relayDone chan struct{}
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: "live-transcription-service",
	})

	backend, err := newBackend(ctx, cfg.STT)
	if err != nil {
		return nil, err
	}
	source, err := audio.NewSource(cfg.Audio, cfg.STT.SampleRateHz)
	if err != nil {
		closeBackend(backend)
		return nil, fmt.Errorf("audio source: %w", err)
	}

	return assemble(cfg, backend, source, metrics.DefaultMetrics), nil
}

// assemble builds the application around an already chosen backend and source.
func assemble(cfg *config.Configuration, backend stt.Backend, source audio.Source, m *metrics.Metrics) *Application {
	a := &Application{
		Logger:    logging.WithComponent("application"),
		Cfg:       cfg,
		metrics:   m,
		backend:   backend,
		relayDone: make(chan struct{}),
	}

	a.manager = session.NewManager(backend, source, session.ConfigFrom(cfg), session.WithMetrics(m))
	a.broadcaster = broadcast.New(cfg.Broadcast.SubscriberBuffer, m)
	a.gateway = gateway.New(a.broadcaster, m)
	a.publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	}, m)
	a.obs = observability.NewServer(cfg.Observability.MetricsAddr, a.ready)
	a.grpc = grpcapi.New(m, a.activeSessionID)
	a.http = &http.Server{
		Handler:           apihttp.NewRouter(a.gateway, a.status),
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.Logger.Info().
		Str("sttProvider", backend.Name()).
		Str("audioSource", cfg.Audio.Source).
		Bool("kafkaEnabled", a.publisher.Enabled()).
		Msg("Live transcription service application created")
	return a
}

func newBackend(ctx context.Context, cfg config.STTConfig) (stt.Backend, error) {
	switch cfg.Provider {
	case "google":
		return google.New(ctx, google.Config{Endpoint: cfg.Endpoint})
	case "mock", "":
		return mock.New(mock.Config{}), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

func closeBackend(b stt.Backend) {
	if c, ok := b.(io.Closer); ok {
		_ = c.Close()
	}
}

// Start opens the listeners and begins the transcription session. On error
// the caller should still call Shutdown.
func (a *Application) Start(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Live transcription service starting")

	a.obs.Start()

	var err error
	a.grpcLis, err = net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go func() {
		if err := a.grpc.Serve(a.grpcLis); err != nil {
			a.Logger.Error().Err(err).Msg("gRPC server error")
		}
	}()

	a.gatewayLis, err = net.Listen("tcp", a.Cfg.Gateway.Addr())
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	go func() {
		a.Logger.Info().Str("addr", a.gatewayLis.Addr().String()).Msg("Subscriber gateway listening")
		if err := a.http.Serve(a.gatewayLis); err != nil && err != http.ErrServerClosed {
			a.Logger.Error().Err(err).Msg("Gateway HTTP server error")
		}
	}()

	s, err := a.manager.Start(ctx, a.Cfg.STT.LanguageCode, a.Cfg.STT.SampleRateHz)
	if err != nil {
		return err
	}
	a.session = s
	a.grpc.SetSessionServing(true)

	go a.relay(s)
	return nil
}

// relay fans session events out to subscribers and Kafka.
func (a *Application) relay(s *session.Session) {
	defer close(a.relayDone)

	for ev := range s.Events() {
		a.broadcaster.Publish(ev)
		if err := a.publisher.Publish(context.Background(), s.ID(), ev); err != nil {
			a.Logger.Warn().Err(err).Str("sessionId", s.ID()).Msg("Failed to relay event to Kafka")
		}
	}
	a.grpc.SetSessionServing(false)
}

// Done is closed when the session has ended and every event was relayed.
func (a *Application) Done() <-chan struct{} {
	return a.relayDone
}

// Err returns the session's fatal error, if any.
func (a *Application) Err() error {
	if a.session == nil {
		return nil
	}
	return a.session.Err()
}

// GatewayAddr returns the subscriber listener address once started.
func (a *Application) GatewayAddr() string {
	if a.gatewayLis == nil {
		return a.Cfg.Gateway.Addr()
	}
	return a.gatewayLis.Addr().String()
}

func (a *Application) activeSessionID() string {
	if s := a.manager.Active(); s != nil {
		return s.ID()
	}
	return ""
}

func (a *Application) ready() error {
	if a.manager.Active() == nil {
		return errNoSession
	}
	return nil
}

func (a *Application) status() apihttp.Status {
	st := apihttp.Status{Subscribers: a.broadcaster.Len()}
	s := a.manager.Active()
	if s == nil {
		return st
	}
	stats := s.Stats()
	st.SessionID = s.ID()
	st.Active = s.Active()
	st.LanguageCode = s.LanguageCode()
	st.StartedAt = s.StartTime().UTC().Format(time.RFC3339)
	st.Connections = stats.Connections
	st.Renewals = stats.Renewals
	st.DroppedChunks = stats.Dropped
	return st
}

// Shutdown stops the session and closes every server, in dependency order.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Live transcription service shutting down")

	var errs []error
	if a.session != nil {
		a.session.Stop()
		select {
		case <-a.relayDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("session stop: %w", ctx.Err()))
		}
	}

	if err := a.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	a.broadcaster.Close()
	if a.gatewayLis != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway http: %w", err))
		}
	}
	if a.grpcLis != nil {
		a.grpc.Stop()
	}
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka: %w", err))
	}
	if err := a.obs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}
	closeBackend(a.backend)

	return errors.Join(errs...)
}
