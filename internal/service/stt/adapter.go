// Package stt defines the contract for streaming Speech-to-Text backends.
package stt

import (
	"context"
	"time"
)

// DefaultMaxStreamDuration is the connection lifetime assumed when a backend
// does not advertise its own limit.
const DefaultMaxStreamDuration = 240 * time.Second

// RecognitionConfig is sent once at the start of every backend connection.
type RecognitionConfig struct {
	Encoding                   string // LINEAR16, MULAW, FLAC, ...
	SampleRateHz               int
	LanguageCode               string
	MaxAlternatives            int
	EnableAutomaticPunctuation bool
	Model                      string
	InterimResults             bool
}

// DefaultRecognitionConfig returns the configuration used for microphone
// audio: 16-bit linear PCM, one alternative, punctuation and interim results.
func DefaultRecognitionConfig() RecognitionConfig {
	return RecognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHz:               16000,
		LanguageCode:               "en-US",
		MaxAlternatives:            1,
		EnableAutomaticPunctuation: true,
		Model:                      "latest_long",
		InterimResults:             true,
	}
}

// Alternative is one hypothesis for a result.
type Alternative struct {
	Transcript string
	Confidence float32
}

// Result is one recognition result. Alternatives are ordered best first.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Response is one message received from a backend connection.
type Response struct {
	Results []Result
}

// Best returns the first alternative of the first result. ok is false when the
// response has no results or the first result has no alternatives.
func (r *Response) Best() (alt Alternative, isFinal bool, ok bool) {
	if r == nil || len(r.Results) == 0 {
		return Alternative{}, false, false
	}
	first := r.Results[0]
	if len(first.Alternatives) == 0 {
		return Alternative{}, false, false
	}
	return first.Alternatives[0], first.IsFinal, true
}

// Stream is one bounded, duplex connection to a backend. Send and CloseSend
// are called from one goroutine, Recv from another.
type Stream interface {
	// Send delivers one audio chunk.
	Send(ctx context.Context, audio []byte) error

	// CloseSend signals that no more audio will be sent. The backend flushes
	// pending results and Recv eventually returns io.EOF.
	CloseSend() error

	// Recv blocks until the next response. It returns io.EOF after a clean end.
	Recv() (*Response, error)

	// Close releases the connection immediately and unblocks Recv.
	Close() error
}

// Backend opens streaming recognition connections.
type Backend interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Open starts a new connection and sends the recognition config.
	Open(ctx context.Context, cfg RecognitionConfig) (Stream, error)
}

// DurationLimiter is implemented by backends that advertise a maximum
// connection lifetime.
type DurationLimiter interface {
	MaxStreamDuration() time.Duration
}

// MaxStreamDuration returns the advertised limit of b, or fallback.
func MaxStreamDuration(b Backend, fallback time.Duration) time.Duration {
	if l, ok := b.(DurationLimiter); ok {
		if d := l.MaxStreamDuration(); d > 0 {
			return d
		}
	}
	return fallback
}
