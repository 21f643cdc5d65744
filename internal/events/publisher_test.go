package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/metrics"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func enabledPublisher(m *metrics.Metrics) (*Publisher, *fakeWriter, *fakeWriter) {
	partial, final := &fakeWriter{}, &fakeWriter{}
	return &Publisher{
		writerPartial: partial,
		writerFinal:   final,
		principal:     "svc-test",
		topicPartial:  "test.partial",
		topicFinal:    "test.final",
		enabled:       true,
		metrics:       m,
	}, partial, final
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, newTestMetrics())
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil || p.writerFinal != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "test.partial",
		TopicFinal:   "test.final",
		Principal:    "test-principal",
	}, newTestMetrics())
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	w, ok := p.writerFinal.(*kafka.Writer)
	if !ok {
		t.Fatalf("expected *kafka.Writer, got %T", p.writerFinal)
	}
	if w.Topic != "test.final" || !w.Async {
		t.Errorf("expected async writer for test.final, got topic=%s async=%v", w.Topic, w.Async)
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "test.partial",
		TopicFinal:   "test.final",
		Principal:    "test-principal",
	}

	p := New(cfg, newTestMetrics())

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicPartial != "test.partial" {
		t.Errorf("expected topic partial 'test.partial', got %s", p.topicPartial)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	m := newTestMetrics()
	p := New(&Config{Enabled: false, TopicPartial: "p", TopicFinal: "f"}, m)

	err := p.Publish(context.Background(), "sess-1", models.TranscriptionEvent{Text: "hi"})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("p", "partial")); got != 1 {
		t.Errorf("expected log-only publish recorded, got %v", got)
	}
}

func TestPublisher_Publish_RoutesByFinality(t *testing.T) {
	p, partial, final := enabledPublisher(newTestMetrics())

	p.Publish(context.Background(), "sess-1", models.TranscriptionEvent{Text: "hel", TimestampMs: 1})
	p.Publish(context.Background(), "sess-1", models.TranscriptionEvent{Text: "hello", IsFinal: true, TimestampMs: 2, ConnectionID: "sess-1-conn-1"})

	if len(partial.messages) != 1 || len(final.messages) != 1 {
		t.Fatalf("expected one message per topic, got %d partial and %d final", len(partial.messages), len(final.messages))
	}

	msg := final.messages[0]
	if string(msg.Key) != "sess-1" {
		t.Errorf("expected key sess-1, got %s", msg.Key)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if env.EventType != "final" || env.Text != "hello" || env.ConnectionID != "sess-1-conn-1" || env.TimestampMs != 2 {
		t.Errorf("unexpected envelope %+v", env)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["eventType"] != "final" || headers["principal"] != "svc-test" {
		t.Errorf("unexpected headers %v", headers)
	}
}

func TestPublisher_Publish_WriteError(t *testing.T) {
	m := newTestMetrics()
	p, partial, _ := enabledPublisher(m)
	partial.err = errors.New("broker down")

	err := p.Publish(context.Background(), "sess-1", models.TranscriptionEvent{Text: "hel"})
	if err == nil {
		t.Fatal("expected write error")
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("test.partial", "partial")); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}

func TestPublisher_Complete(t *testing.T) {
	m := newTestMetrics()
	p, _, _ := enabledPublisher(m)

	batch := []kafka.Message{{Time: time.Now()}, {Time: time.Now()}}
	p.complete("test.final", "final", batch, nil)
	p.complete("test.final", "final", batch[:1], errors.New("timeout"))

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.final", "final")); got != 3 {
		t.Errorf("expected 3 publishes recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("test.final", "final")); got != 1 {
		t.Errorf("expected 1 error recorded, got %v", got)
	}
}

func TestPublisher_Close(t *testing.T) {
	p, partial, final := enabledPublisher(newTestMetrics())

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !partial.closed || !final.closed {
		t.Error("expected both writers closed")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false}, newTestMetrics())

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
