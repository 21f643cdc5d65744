package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyActive is returned by Start while another session is running.
	ErrAlreadyActive = errors.New("a transcription session is already active")
	// ErrAudioSourceUnavailable means the audio source could not be opened.
	ErrAudioSourceUnavailable = errors.New("audio source unavailable")
	// ErrRetryBudgetExceeded means too many transient backend failures
	// happened within the retry window.
	ErrRetryBudgetExceeded = errors.New("retry budget exceeded")
)

// Fatal error kinds.
const (
	KindAudioSource = "audio_source"
	KindConfig      = "config"
	KindRetryBudget = "retry_budget"
)

// FatalError ends a session.
type FatalError struct {
	Kind string
	At   time.Time
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("session failed (%s) at %s: %v", e.Kind, e.At.Format(time.RFC3339), e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
