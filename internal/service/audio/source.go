// Package audio provides the audio sources that feed a transcription session
// with fixed-size chunks of 16-bit little-endian mono PCM.
package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"live-transcription-service/internal/observability/logging"
)

// ErrSourceBusy is returned by Open when the source is already claimed.
var ErrSourceBusy = errors.New("audio source is already open")

// Source produces audio chunks until it is closed or its input ends. The
// returned channel is closed when production stops.
type Source interface {
	Open(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// BytesPerSample for LINEAR16 audio.
const BytesPerSample = 2

// ChunkSize returns the number of bytes in d of mono LINEAR16 audio at
// sampleRateHz. 100ms at 16kHz is 3200 bytes.
func ChunkSize(sampleRateHz int, d time.Duration) int {
	n := int(int64(sampleRateHz*BytesPerSample) * int64(d) / int64(time.Second))
	// keep whole samples
	n -= n % BytesPerSample
	if n < BytesPerSample {
		return BytesPerSample
	}
	return n
}

// openFunc acquires the underlying stream for one Open call.
type openFunc func(ctx context.Context) (io.ReadCloser, error)

// ReaderSource chunks an io.Reader. When interval is non-zero each chunk is
// released on a ticker, which paces pre-recorded audio at real-time speed.
type ReaderSource struct {
	name      string
	open      openFunc
	chunkSize int
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	rc     io.ReadCloser
	done   chan struct{}
}

func newReaderSource(name string, open openFunc, chunkSize int, interval time.Duration) *ReaderSource {
	return &ReaderSource{name: name, open: open, chunkSize: chunkSize, interval: interval}
}

// NewReaderSource wraps r. The reader is consumed once; reopening continues
// from where the previous Open stopped.
func NewReaderSource(r io.Reader, chunkSize int, interval time.Duration) *ReaderSource {
	return newReaderSource("reader", func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}, chunkSize, interval)
}

// Open claims the source and starts producing chunks.
func (s *ReaderSource) Open(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil, ErrSourceBusy
	}

	rc, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan []byte, 16)
	done := make(chan struct{})

	s.cancel = cancel
	s.rc = rc
	s.done = done

	go s.pump(ctx, rc, out, done)
	return out, nil
}

func (s *ReaderSource) pump(ctx context.Context, r io.Reader, out chan<- []byte, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	log := logging.WithComponent("audio").With().Str("source", s.name).Logger()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		buf := make([]byte, s.chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Audio read failed")
			} else {
				log.Debug().Msg("Audio input ended")
			}
			return
		}
	}
}

// Close stops production and releases the underlying stream. The source can
// be opened again afterwards. Close is idempotent.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := s.rc.Close()
	<-s.done

	s.cancel = nil
	s.rc = nil
	s.done = nil
	return err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// NewSilenceSource produces silent chunks every interval, forever.
func NewSilenceSource(chunkSize int, interval time.Duration) *ReaderSource {
	return newReaderSource("silence", func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(zeroReader{}), nil
	}, chunkSize, interval)
}
