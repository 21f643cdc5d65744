package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/stt"
)

// fakeClock only moves when advanced. Timers from After fire once Advance
// reaches them.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeTimer
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeTimer{at: at, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if c.now.Before(w.at) {
			pending = append(pending, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = pending
}

// Waiters returns the number of timers that have not fired.
func (c *fakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// fakeSource emits count chunks then ends. A negative count never ends. An
// idle source stays open without producing audio.
type fakeSource struct {
	count   int
	idle    bool
	openErr error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	opens  int
}

var _ audio.Source = (*fakeSource)(nil)

func (s *fakeSource) Open(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}
	if s.cancel != nil {
		return nil, audio.ErrSourceBusy
	}
	s.opens++

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan []byte)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer close(out)
		if s.idle {
			<-ctx.Done()
			return
		}
		for i := 0; s.count < 0 || i < s.count; i++ {
			select {
			case out <- make([]byte, 3200):
			case <-ctx.Done():
				return
			}
			if s.count < 0 {
				// live input arrives in real time
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return out, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	return nil
}

// fakeBackend scripts connections. Every Send advances the clock by one chunk.
type fakeBackend struct {
	clock        *fakeClock
	chunk        time.Duration
	partialEvery int                      // emit a partial every N chunks
	emptyEvery   int                      // emit a response without results every N chunks
	text         func(conn, n int) string // partial text for chunk n of connection conn
	failAfter    int                      // fail the stream after N chunks
	failErr      error
	openErrs     []error // consumed one per Open
	limit        time.Duration
	eofOnOpen    bool // end every stream right away
	holdTail     bool // never end the stream after CloseSend

	mu    sync.Mutex
	opens int
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) MaxStreamDuration() time.Duration { return b.limit }

func (b *fakeBackend) Open(context.Context, stt.RecognitionConfig) (stt.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.opens++
	if len(b.openErrs) > 0 {
		err := b.openErrs[0]
		b.openErrs = b.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	st := &fakeStream{
		backend: b,
		conn:    b.opens,
		out:     make(chan recvResult, 100000),
		closeCh: make(chan struct{}),
	}
	if b.eofOnOpen {
		st.out <- recvResult{err: io.EOF}
	}
	return st, nil
}

func (b *fakeBackend) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

type fakeStream struct {
	backend *fakeBackend
	conn    int
	out     chan recvResult
	closeCh chan struct{}

	mu        sync.Mutex
	sent      int
	failed    bool
	sendDone  bool
	closeOnce sync.Once
}

func textResponse(text string, final bool) *stt.Response {
	return &stt.Response{Results: []stt.Result{{
		Alternatives: []stt.Alternative{{Transcript: text, Confidence: 0.9}},
		IsFinal:      final,
	}}}
}

func (s *fakeStream) Send(_ context.Context, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.backend
	if s.failed {
		return b.failErr
	}
	if s.sendDone {
		return stt.Transient("send", io.ErrClosedPipe)
	}

	s.sent++
	b.clock.Advance(b.chunk)

	if b.emptyEvery > 0 && s.sent%b.emptyEvery == 0 {
		s.out <- recvResult{resp: &stt.Response{}}
	}
	if b.partialEvery > 0 && s.sent%b.partialEvery == 0 {
		text := fmt.Sprintf("c%d-p%d", s.conn, s.sent)
		if b.text != nil {
			text = b.text(s.conn, s.sent)
		}
		s.out <- recvResult{resp: textResponse(text, false)}
	}
	if b.failAfter > 0 && s.sent == b.failAfter {
		s.failed = true
		s.out <- recvResult{err: b.failErr}
	}
	return nil
}

// CloseSend flushes a tail final for the connection, then ends the stream.
func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendDone {
		return nil
	}
	s.sendDone = true
	if s.backend.holdTail {
		return nil
	}
	s.out <- recvResult{resp: textResponse(tailText(s.conn), true)}
	s.out <- recvResult{err: io.EOF}
	return nil
}

func (s *fakeStream) Recv() (*stt.Response, error) {
	select {
	case r := <-s.out:
		return r.resp, r.err
	case <-s.closeCh:
		return nil, stt.Transient("recv", io.ErrClosedPipe)
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	return nil
}

func tailText(conn int) string {
	return fmt.Sprintf("tail-c%d", conn)
}
