// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge
	SessionsFailed *prometheus.CounterVec

	// Backend connection metrics
	ConnectionsOpened  *prometheus.CounterVec
	ConnectionRenewals *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram
	BackendErrors      *prometheus.CounterVec

	// Audio metrics
	AudioBytesSent     prometheus.Counter
	AudioChunksSent    prometheus.Counter
	AudioChunksDropped prometheus.Counter

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	ResponsesDiscarded prometheus.Counter

	// Broadcast metrics
	SubscribersActive  prometheus.Gauge
	SubscribersEvicted *prometheus.CounterVec
	BroadcastsTotal    prometheus.Counter
	BroadcastLatency   prometheus.Histogram

	// Gateway metrics
	GatewayConnections prometheus.Counter
	GatewayMessages    *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCStreamsActive   prometheus.Gauge
	GRPCStreamsTotal    *prometheus.CounterVec
	GRPCStreamDuration  prometheus.Histogram
	GRPCUnaryCallsTotal *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of transcription sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active transcription sessions",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions ended by a fatal error",
		}, []string{"kind"}),

		// Backend connection metrics
		ConnectionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Total number of recognition backend connections opened",
		}, []string{"provider"}),
		ConnectionRenewals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_renewals_total",
			Help:      "Total number of backend connection renewals",
		}, []string{"reason"}),
		ConnectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of recognition backend connections in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total number of recognition backend errors",
		}, []string{"provider", "error_type"}),

		// Audio metrics
		AudioBytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes sent to the recognition backend",
		}),
		AudioChunksSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Total audio chunks sent to the recognition backend",
		}),
		AudioChunksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped because the switchover queue overflowed",
		}),

		// Transcript metrics
		TranscriptsPartial: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts emitted",
		}),
		TranscriptsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts emitted",
		}),
		ResponsesDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_discarded_total",
			Help:      "Total backend responses without results or alternatives",
		}),

		// Broadcast metrics
		SubscribersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Number of currently registered subscribers",
		}),
		SubscribersEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_evicted_total",
			Help:      "Total subscribers removed because delivery failed",
		}, []string{"reason"}),
		BroadcastsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of events published to subscribers",
		}),
		BroadcastLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_latency_seconds",
			Help:      "Time to dispatch one event to all subscribers",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		// Gateway metrics
		GatewayConnections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_connections_total",
			Help:      "Total websocket connections accepted",
		}),
		GatewayMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_messages_total",
			Help:      "Total inbound subscriber messages by outcome",
		}, []string{"outcome"}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// gRPC metrics
		GRPCStreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently open gRPC streams",
		}),
		GRPCStreamsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_streams_total",
			Help:      "Total number of gRPC streams by result",
		}, []string{"result"}),
		GRPCStreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_stream_duration_seconds",
			Help:      "Duration of gRPC streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900},
		}),
		GRPCUnaryCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_unary_calls_total",
			Help:      "Total number of gRPC unary calls by method and code",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending. kind is empty for a clean stop.
func (m *Metrics) RecordSessionEnd(kind string) {
	m.SessionsActive.Dec()
	if kind != "" {
		m.SessionsFailed.WithLabelValues(kind).Inc()
	}
}

// RecordConnectionOpened records a backend connection being opened.
func (m *Metrics) RecordConnectionOpened(provider string) {
	m.ConnectionsOpened.WithLabelValues(provider).Inc()
}

// RecordConnectionClosed records the lifetime of a closed backend connection.
func (m *Metrics) RecordConnectionClosed(durationSeconds float64) {
	m.ConnectionDuration.Observe(durationSeconds)
}

// RecordRenewal records a connection renewal.
func (m *Metrics) RecordRenewal(reason string) {
	m.ConnectionRenewals.WithLabelValues(reason).Inc()
}

// RecordBackendError records a recognition backend error.
func (m *Metrics) RecordBackendError(provider, errorType string) {
	m.BackendErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordAudioSent records one audio chunk sent to the backend.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
	m.AudioChunksSent.Inc()
}

// RecordChunkDropped records one audio chunk lost to queue overflow.
func (m *Metrics) RecordChunkDropped() {
	m.AudioChunksDropped.Inc()
}

// RecordTranscript records an emitted transcript.
func (m *Metrics) RecordTranscript(isFinal bool) {
	if isFinal {
		m.TranscriptsFinal.Inc()
	} else {
		m.TranscriptsPartial.Inc()
	}
}

// RecordDiscarded records a backend response carrying nothing to emit.
func (m *Metrics) RecordDiscarded() {
	m.ResponsesDiscarded.Inc()
}

// RecordSubscribers sets the registered subscriber count.
func (m *Metrics) RecordSubscribers(n int) {
	m.SubscribersActive.Set(float64(n))
}

// RecordEviction records a subscriber removed after a failed delivery.
func (m *Metrics) RecordEviction(reason string) {
	m.SubscribersEvicted.WithLabelValues(reason).Inc()
}

// RecordBroadcast records one published event.
func (m *Metrics) RecordBroadcast(latencySeconds float64) {
	m.BroadcastsTotal.Inc()
	m.BroadcastLatency.Observe(latencySeconds)
}

// RecordGatewayConnection records an accepted websocket connection.
func (m *Metrics) RecordGatewayConnection() {
	m.GatewayConnections.Inc()
}

// RecordGatewayMessage records an inbound subscriber message outcome.
func (m *Metrics) RecordGatewayMessage(outcome string) {
	m.GatewayMessages.WithLabelValues(outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCStreamStart records a gRPC stream starting.
func (m *Metrics) RecordGRPCStreamStart() {
	m.GRPCStreamsActive.Inc()
}

// RecordGRPCStreamEnd records a gRPC stream ending.
func (m *Metrics) RecordGRPCStreamEnd(success bool, durationSeconds float64) {
	m.GRPCStreamsActive.Dec()
	m.GRPCStreamDuration.Observe(durationSeconds)
	result := "success"
	if !success {
		result = "failure"
	}
	m.GRPCStreamsTotal.WithLabelValues(result).Inc()
}

// RecordGRPCUnary records a gRPC unary call.
func (m *Metrics) RecordGRPCUnary(method, code string) {
	m.GRPCUnaryCallsTotal.WithLabelValues(method, code).Inc()
}
