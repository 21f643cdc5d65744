// Package broadcast fans transcription events out to connected subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Eviction reasons.
const (
	EvictFull   = "buffer_full"
	EvictClosed = "closed"
)

// Subscriber is the delivery handle of one registered subscriber. Events are
// delivered in publish order on Events until the handle is closed.
type Subscriber struct {
	id     string
	events chan models.TranscriptionEvent
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSubscriber(id string, buffer int) *Subscriber {
	return &Subscriber{
		id:     id,
		events: make(chan models.TranscriptionEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

// Events returns the delivery queue. It is closed when the subscriber is.
func (s *Subscriber) Events() <-chan models.TranscriptionEvent {
	return s.events
}

// Done is closed when the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close marks the subscriber closed. Further offers fail. Idempotent.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.events)
}

// offer enqueues ev without blocking. It fails if the queue is full or the
// subscriber is closed.
func (s *Subscriber) offer(ev models.TranscriptionEvent) (ok bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, EvictClosed
	}
	select {
	case s.events <- ev:
		return true, ""
	default:
		return false, EvictFull
	}
}

// Broadcaster owns the subscriber set. Structural changes are serialized by a
// mutex and publish a new immutable snapshot; Publish reads the current
// snapshot without locking, so membership may change while a publish is in
// flight.
type Broadcaster struct {
	buffer  int
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]*Subscriber]
	closed   bool
}

// New creates a broadcaster whose subscribers buffer up to buffer events.
func New(buffer int, m *metrics.Metrics) *Broadcaster {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	b := &Broadcaster{
		buffer:  buffer,
		metrics: m,
		log:     logging.WithComponent("broadcast"),
	}
	empty := map[string]*Subscriber{}
	b.snapshot.Store(&empty)
	return b
}

// Register adds a subscriber. Registering an existing id returns the existing
// handle. After Close, Register returns a closed handle.
func (b *Broadcaster) Register(id string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.snapshot.Load()
	if s, ok := current[id]; ok {
		return s
	}

	s := newSubscriber(id, b.buffer)
	if b.closed {
		s.Close()
		return s
	}

	next := make(map[string]*Subscriber, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[id] = s
	b.snapshot.Store(&next)
	b.metrics.RecordSubscribers(len(next))

	b.log.Debug().Str("subscriberId", id).Int("subscribers", len(next)).Msg("Subscriber registered")
	return s
}

// Unregister removes and closes a subscriber. Unknown ids are ignored.
func (b *Broadcaster) Unregister(id string) {
	b.remove(id, nil)
}

// remove deletes id if it still maps to want (any handle when want is nil).
func (b *Broadcaster) remove(id string, want *Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.snapshot.Load()
	s, ok := current[id]
	if !ok || (want != nil && s != want) {
		return false
	}

	next := make(map[string]*Subscriber, len(current))
	for k, v := range current {
		if k != id {
			next[k] = v
		}
	}
	b.snapshot.Store(&next)
	b.metrics.RecordSubscribers(len(next))
	s.Close()

	b.log.Debug().Str("subscriberId", id).Int("subscribers", len(next)).Msg("Subscriber unregistered")
	return true
}

// Publish offers ev to every current subscriber. It never blocks and never
// fails; subscribers that cannot take the event are evicted.
func (b *Broadcaster) Publish(ev models.TranscriptionEvent) {
	start := time.Now()

	for id, s := range *b.snapshot.Load() {
		if ok, reason := s.offer(ev); !ok {
			if b.remove(id, s) {
				b.metrics.RecordEviction(reason)
				b.log.Info().Str("subscriberId", id).Str("reason", reason).Msg("Subscriber evicted")
			}
		}
	}

	b.metrics.RecordBroadcast(time.Since(start).Seconds())
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	return len(*b.snapshot.Load())
}

// Close closes every subscriber and rejects new registrations.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, s := range *b.snapshot.Load() {
		s.Close()
	}
	empty := map[string]*Subscriber{}
	b.snapshot.Store(&empty)
	b.metrics.RecordSubscribers(0)
}
