package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/service/connection"
	"live-transcription-service/internal/service/stt"
)

// Stats are counters for a session.
type Stats struct {
	Connections int64
	Renewals    int64
	Dropped     int64 // audio chunks lost to queue overflow
}

// Session is one continuous transcription stream. Events are emitted in order
// and the channel is closed when the session ends.
type Session struct {
	id          string
	startTime   time.Time
	recognition stt.RecognitionConfig
	manager     *Manager

	ctx    context.Context
	cancel context.CancelFunc

	events chan models.TranscriptionEvent
	done   chan struct{}
	err    error
	reason string
	active atomic.Bool

	queue       *chunkQueue
	connIds     *connection.Generator
	budget      *retryBudget
	maxDuration time.Duration
	log         zerolog.Logger

	// owned by the run goroutine
	lastTimestampMs int64

	connections atomic.Int64
	renewals    atomic.Int64
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) StartTime() time.Time {
	return s.startTime
}

// Active reports whether the session is still running.
func (s *Session) Active() bool {
	return s.active.Load()
}

func (s *Session) LanguageCode() string {
	return s.recognition.LanguageCode
}

func (s *Session) SampleRateHz() int {
	return s.recognition.SampleRateHz
}

// Events returns the transcription event stream.
func (s *Session) Events() <-chan models.TranscriptionEvent {
	return s.events
}

// Done is closed once the session has ended and released its resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns nil for a clean end or a *FatalError. Valid after Done.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// EndReason reports why the session ended: stopped, stop_word, audio_ended
// or fatal. Empty until Done.
func (s *Session) EndReason() string {
	select {
	case <-s.done:
		return s.reason
	default:
		return ""
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		Connections: s.connections.Load(),
		Renewals:    s.renewals.Load(),
		Dropped:     s.queue.Dropped(),
	}
}

// Stop ends the session. It does not wait; use Done.
func (s *Session) Stop() {
	s.cancel()
}

// ingest moves chunks from the audio source into the queue.
func (s *Session) ingest(chunks <-chan []byte) {
	for c := range chunks {
		if s.queue.Push(c) {
			s.manager.metrics.RecordChunkDropped()
			s.log.Warn().Int("queued", s.queue.Len()).Msg("Audio queue full, dropped oldest chunk")
		}
	}
	s.queue.Close()
}

type outcome int

const (
	outcomeStop outcome = iota
	outcomeRenew
	outcomeRetry
	outcomeFatal
)

// connResult describes how a connection ended.
type connResult struct {
	outcome outcome
	reason  string
	err     error
}

func stopped(reason string) connResult {
	return connResult{outcome: outcomeStop, reason: reason}
}

func renew(reason string) connResult {
	return connResult{outcome: outcomeRenew, reason: reason}
}

type recvResult struct {
	resp *stt.Response
	err  error
}

// conn is the run loop's view of the current backend connection.
type conn struct {
	lc        *connection.Lifecycle
	stream    stt.Stream
	responses <-chan recvResult
	log       zerolog.Logger
}

func (s *Session) run() {
	m := s.manager
	var fatal error
	reason := ""

loop:
	for {
		res := s.runConnection()
		switch res.outcome {
		case outcomeRenew:
			s.renewals.Add(1)
			m.metrics.RecordRenewal(res.reason)
			s.log.Info().Str("reason", res.reason).Msg("Renewing backend connection")

		case outcomeRetry:
			m.metrics.RecordBackendError(m.backend.Name(), stt.KindOf(res.err).String())
			if !s.budget.Allow(m.clock.Now()) {
				fatal = &FatalError{
					Kind: KindRetryBudget,
					At:   m.clock.Now(),
					Err:  fmt.Errorf("%w: %w", ErrRetryBudgetExceeded, res.err),
				}
				reason = "fatal"
				break loop
			}
			s.renewals.Add(1)
			m.metrics.RecordRenewal("error")
			s.log.Warn().Err(res.err).Msg("Backend connection failed, renewing")

		case outcomeFatal:
			m.metrics.RecordBackendError(m.backend.Name(), stt.KindOf(res.err).String())
			fatal = &FatalError{Kind: KindConfig, At: m.clock.Now(), Err: res.err}
			reason = "fatal"
			break loop

		default:
			reason = res.reason
			break loop
		}
	}

	s.finish(reason, fatal)
}

// runConnection opens one backend connection and drives it until it has to
// be replaced or the session ends. Exactly one connection is open at a time:
// the previous one is fully closed before this is called again.
func (s *Session) runConnection() connResult {
	m := s.manager

	if s.ctx.Err() != nil {
		return stopped("stopped")
	}
	if s.queue.Exhausted() {
		return stopped("audio_ended")
	}

	openedAt := m.clock.Now()
	lc := connection.NewLifecycle(s.connIds.Next(s.id), openedAt, s.maxDuration)
	log := logging.WithConnection(s.log, lc.ID(), m.backend.Name())

	stream, err := m.backend.Open(s.ctx, s.recognition)
	if err != nil {
		lc.Fail(err)
		if s.ctx.Err() != nil {
			return stopped("stopped")
		}
		log.Warn().Err(err).Msg("Failed to open backend connection")
		return classify(err)
	}

	s.connections.Add(1)
	m.metrics.RecordConnectionOpened(m.backend.Name())
	log.Info().Time("deadline", lc.Deadline()).Msg("Backend connection opened")

	connCtx, cancel := context.WithCancel(s.ctx)
	responses := make(chan recvResult)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		receive(connCtx, stream, responses)
	}()

	defer func() {
		cancel()
		stream.Close()
		wg.Wait()
		lc.Close()
		m.metrics.RecordConnectionClosed(m.clock.Now().Sub(openedAt).Seconds())
		log.Info().Str("state", lc.State().String()).Msg("Backend connection closed")
	}()

	c := &conn{lc: lc, stream: stream, responses: responses, log: log}
	deadline := m.clock.After(lc.Remaining(openedAt))

	for {
		if lc.Expired(m.clock.Now()) {
			return s.drain(c, "duration")
		}

		select {
		case <-s.ctx.Done():
			return stopped("stopped")

		case <-deadline:
			return s.drain(c, "duration")

		case <-s.queue.Ready():
			if res, done := s.feed(c); done {
				return res
			}

		case r := <-responses:
			if res, done := s.handle(c, r); done {
				return res
			}
		}
	}
}

// receive forwards responses until the stream ends or the connection is
// torn down.
func receive(ctx context.Context, stream stt.Stream, out chan<- recvResult) {
	for {
		resp, err := stream.Recv()
		select {
		case out <- recvResult{resp: resp, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// feed sends every queued chunk, checking the duration limit before each one.
func (s *Session) feed(c *conn) (connResult, bool) {
	m := s.manager

	for {
		if c.lc.Expired(m.clock.Now()) {
			return s.drain(c, "duration"), true
		}
		chunk, ok := s.queue.TryPop()
		if !ok {
			break
		}
		if err := c.stream.Send(s.ctx, chunk); err != nil {
			s.queue.Unshift(chunk)
			c.lc.Fail(err)
			if s.ctx.Err() != nil {
				return stopped("stopped"), true
			}
			c.log.Warn().Err(err).Msg("Failed to send audio")
			return classify(err), true
		}
		m.metrics.RecordAudioSent(len(chunk))
	}

	if s.queue.Exhausted() {
		res := s.drain(c, "audio_ended")
		if res.outcome == outcomeRenew {
			return stopped("audio_ended"), true
		}
		return res, true
	}
	return connResult{}, false
}

// handle processes one received response or receive error.
func (s *Session) handle(c *conn, r recvResult) (connResult, bool) {
	if r.err != nil {
		if errors.Is(r.err, io.EOF) {
			// the backend ended a connection nobody asked it to end
			c.lc.Fail(r.err)
			c.log.Warn().Msg("Backend closed the connection unexpectedly")
			return connResult{outcome: outcomeRetry, err: stt.Transient("recv", r.err)}, true
		}
		c.lc.Fail(r.err)
		if s.ctx.Err() != nil {
			return stopped("stopped"), true
		}
		c.log.Warn().Err(r.err).Msg("Backend connection ended with error")
		return classify(r.err), true
	}

	if s.emit(c.lc.ID(), r.resp) {
		return s.stopAfterEmit(), true
	}
	return connResult{}, false
}

// drain closes the connection's input and emits its tail responses until the
// backend ends the stream or the drain timeout elapses.
func (s *Session) drain(c *conn, reason string) connResult {
	m := s.manager

	if err := c.lc.BeginDrain(); err != nil {
		return renew(reason)
	}
	if err := c.stream.CloseSend(); err != nil {
		c.log.Debug().Err(err).Msg("CloseSend failed")
	}

	timeout := m.clock.After(m.cfg.DrainTimeout)
	for {
		select {
		case <-s.ctx.Done():
			return stopped("stopped")

		case <-timeout:
			c.log.Warn().Dur("drainTimeout", m.cfg.DrainTimeout).Msg("Drain timed out")
			return renew(reason)

		case r := <-c.responses:
			if r.err != nil {
				if !errors.Is(r.err, io.EOF) {
					c.log.Debug().Err(r.err).Msg("Drain ended with error")
				}
				return renew(reason)
			}
			if s.emit(c.lc.ID(), r.resp) {
				return s.stopAfterEmit()
			}
		}
	}
}

// stopAfterEmit names why emit ended the session.
func (s *Session) stopAfterEmit() connResult {
	if s.ctx.Err() != nil {
		return stopped("stopped")
	}
	return stopped("stop_word")
}

// classify maps a backend error to a connection outcome.
func classify(err error) connResult {
	switch stt.KindOf(err) {
	case stt.KindStreamLimit:
		return renew("limit")
	case stt.KindConfig:
		return connResult{outcome: outcomeFatal, err: err}
	default:
		return connResult{outcome: outcomeRetry, err: err}
	}
}

// emit turns a response into an event. It returns true when the session must
// stop: the event carried the stop word or the session was cancelled.
func (s *Session) emit(connectionId string, resp *stt.Response) bool {
	m := s.manager

	alt, isFinal, ok := resp.Best()
	if !ok {
		m.metrics.RecordDiscarded()
		return false
	}

	ts := m.clock.Now().UnixMilli()
	if ts < s.lastTimestampMs {
		ts = s.lastTimestampMs
	}
	s.lastTimestampMs = ts

	ev := models.TranscriptionEvent{
		Text:         alt.Transcript,
		IsFinal:      isFinal,
		TimestampMs:  ts,
		ConnectionID: connectionId,
	}

	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		return true
	}
	m.metrics.RecordTranscript(isFinal)

	if containsStopWord(alt.Transcript, m.cfg.StopWord) {
		s.log.Info().Str("stopWord", m.cfg.StopWord).Msg("Stop word detected")
		return true
	}
	return false
}

func (s *Session) finish(reason string, err error) {
	m := s.manager

	s.active.Store(false)
	s.cancel()
	m.release(s)

	s.err = err
	s.reason = reason
	close(s.events)

	stats := s.Stats()
	kind := ""
	var fe *FatalError
	if errors.As(err, &fe) {
		kind = fe.Kind
		s.log.Error().
			Err(fe.Err).
			Str("kind", fe.Kind).
			Time("at", fe.At).
			Int64("connections", stats.Connections).
			Msg("Session failed")
	} else {
		s.log.Info().
			Str("reason", reason).
			Int64("connections", stats.Connections).
			Int64("renewals", stats.Renewals).
			Int64("droppedChunks", stats.Dropped).
			Dur("duration", m.clock.Now().Sub(s.startTime)).
			Msg("Session ended")
	}
	m.metrics.RecordSessionEnd(kind)

	close(s.done)
}
