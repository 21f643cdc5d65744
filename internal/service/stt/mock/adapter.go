// Package mock provides a mock STT backend for running without cloud credentials.
// It simulates realistic speech-to-text behavior with progressive partial transcripts
// and exactly one final transcript per utterance.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"live-transcription-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float32  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Good", "Good morning", "Good morning everyone"},
		Final:      "Good morning everyone and welcome",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Today", "Today we", "Today we will look"},
		Final:      "Today we will look at the quarterly numbers",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Please", "Please hold"},
		Final:      "Please hold your questions until the end",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"The first", "The first slide", "The first slide shows"},
		Final:      "The first slide shows revenue by region",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Confidence: 0.98,
	},
}

// DefaultChunksPerStep is how many audio chunks advance the simulation by one
// partial. With 100ms chunks that is one partial every half second.
const DefaultChunksPerStep = 5

// Config configures the mock backend.
type Config struct {
	Utterances        []SimulatedUtterance
	ChunksPerStep     int
	MaxStreamDuration time.Duration // advertised when non-zero
}

// Backend implements stt.Backend with scripted responses. Utterances cycle
// across connections so renewals continue the script.
type Backend struct {
	cfg Config

	mu   sync.Mutex
	next int // index of the next utterance to simulate
}

// New creates a new mock STT backend.
func New(cfg Config) *Backend {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	if cfg.ChunksPerStep <= 0 {
		cfg.ChunksPerStep = DefaultChunksPerStep
	}
	return &Backend{cfg: cfg}
}

func (b *Backend) Name() string {
	return "mock"
}

func (b *Backend) MaxStreamDuration() time.Duration {
	return b.cfg.MaxStreamDuration
}

// Open starts a mock connection. It never fails.
func (b *Backend) Open(ctx context.Context, _ stt.RecognitionConfig) (stt.Stream, error) {
	s := &stream{
		backend: b,
		ctx:     ctx,
		notify:  make(chan struct{}, 1),
	}
	s.utterance = b.nextUtterance()
	return s, nil
}

func (b *Backend) nextUtterance() SimulatedUtterance {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.cfg.Utterances[b.next%len(b.cfg.Utterances)]
	b.next++
	return u
}

// stream simulates one connection.
// - Every ChunksPerStep chunks the next partial is emitted
// - After the last partial the final is emitted and the next utterance starts
// - CloseSend flushes a pending final, then Recv returns io.EOF
type stream struct {
	backend *Backend
	ctx     context.Context
	notify  chan struct{}

	mu           sync.Mutex
	pending      []*stt.Response
	utterance    SimulatedUtterance
	chunks       int
	partialIndex int
	sendClosed   bool
	closed       bool
}

func (s *stream) Send(_ context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.sendClosed {
		return stt.Transient("send", io.ErrClosedPipe)
	}

	s.chunks++
	if s.chunks%s.backend.cfg.ChunksPerStep != 0 {
		return nil
	}

	if s.partialIndex < len(s.utterance.Partials) {
		s.push(s.utterance.Partials[s.partialIndex], 0, false)
		s.partialIndex++
		return nil
	}

	s.push(s.utterance.Final, s.utterance.Confidence, true)
	s.utterance = s.backend.nextUtterance()
	s.partialIndex = 0
	return nil
}

// CloseSend sends the final for an utterance that already produced partials.
func (s *stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	if s.partialIndex > 0 {
		s.push(s.utterance.Final, s.utterance.Confidence, true)
		s.partialIndex = 0
	}
	s.signal()
	return nil
}

func (s *stream) Recv() (*stt.Response, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, stt.Transient("recv", io.ErrClosedPipe)
		}
		if len(s.pending) > 0 {
			resp := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return resp, nil
		}
		if s.sendClosed {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.ctx.Done():
			return nil, stt.Transient("recv", s.ctx.Err())
		}
	}
}

// Close ends the connection and unblocks Recv. It is idempotent.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.signal()
	return nil
}

// push must be called with mu held.
func (s *stream) push(text string, confidence float32, final bool) {
	s.pending = append(s.pending, &stt.Response{
		Results: []stt.Result{{
			Alternatives: []stt.Alternative{{Transcript: text, Confidence: confidence}},
			IsFinal:      final,
		}},
	})
	s.signal()
}

func (s *stream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
