// Package events relays transcription events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/metrics"
)

// Envelope is the Kafka message value for one transcription event.
type Envelope struct {
	EventType    string `json:"eventType"` // partial or final
	SessionID    string `json:"sessionId"`
	ConnectionID string `json:"connectionId,omitempty"`
	Text         string `json:"text"`
	IsFinal      bool   `json:"isFinal"`
	TimestampMs  int64  `json:"timestampMs"`
}

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes transcript events to separate Kafka topics. Writers run
// in async mode so a slow broker never delays the live broadcast.
type Publisher struct {
	writerPartial messageWriter
	writerFinal   messageWriter
	principal     string
	topicPartial  string
	topicFinal    string
	enabled       bool
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// New creates a new Kafka event publisher with separate topics for partial and final transcripts.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicPartial: cfg.TopicPartial,
			topicFinal:   cfg.TopicFinal,
			enabled:      false,
			metrics:      m,
		}
	}

	// Custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p := &Publisher{
		principal:    cfg.Principal,
		topicPartial: cfg.TopicPartial,
		topicFinal:   cfg.TopicFinal,
		enabled:      true,
		metrics:      m,
	}
	p.writerPartial = p.newWriter(cfg.Brokers, cfg.TopicPartial, "partial", transport)
	p.writerFinal = p.newWriter(cfg.Brokers, cfg.TopicFinal, "final", transport)

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func (p *Publisher) newWriter(brokers []string, topic, eventType string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same session, same partition
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Transport:    transport,
		Completion: func(messages []kafka.Message, err error) {
			p.complete(topic, eventType, messages, err)
		},
	}
}

// complete records the outcome of an async batch.
func (p *Publisher) complete(topic, eventType string, messages []kafka.Message, err error) {
	for _, msg := range messages {
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(msg.Time).Seconds())
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Int("messages", len(messages)).
			Msg("Failed to write to Kafka")
	}
}

// Publish routes ev to the partial or final topic, keyed by session.
func (p *Publisher) Publish(ctx context.Context, sessionId string, ev models.TranscriptionEvent) error {
	if ev.IsFinal {
		return p.publish(ctx, p.writerFinal, p.topicFinal, sessionId, ev)
	}
	return p.publish(ctx, p.writerPartial, p.topicPartial, sessionId, ev)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, key string, ev models.TranscriptionEvent) error {
	start := time.Now()
	eventType := ev.Kind()

	payload, err := json.Marshal(Envelope{
		EventType:    eventType,
		SessionID:    key,
		ConnectionID: ev.ConnectionID,
		Text:         ev.Text,
		IsFinal:      ev.IsFinal,
		TimestampMs:  ev.TimestampMs,
	})
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  start,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	// Async writers only fail here on misuse; delivery errors reach complete.
	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}
	return nil
}

// Enabled reports whether events are forwarded to Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Close flushes and closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing partial writer")
			err = e
		}
	}
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	return err
}
