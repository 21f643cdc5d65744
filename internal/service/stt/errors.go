package stt

import (
	"errors"
	"fmt"
)

// ErrorKind classifies backend failures by how the session must react.
type ErrorKind int

const (
	// KindTransient covers network resets and server-side failures. The
	// connection is renewed.
	KindTransient ErrorKind = iota
	// KindConfig covers bad credentials and invalid recognition config. Never
	// retried.
	KindConfig
	// KindStreamLimit means the backend ended the connection because it ran
	// past its maximum duration. The connection is renewed without counting
	// as a failure.
	KindStreamLimit
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConfig:
		return "config"
	case KindStreamLimit:
		return "stream_limit"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// BackendError is a classified backend failure.
type BackendError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("stt %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a transient failure of op.
func Transient(op string, err error) error {
	return &BackendError{Kind: KindTransient, Op: op, Err: err}
}

// Config wraps err as a configuration or credentials failure of op.
func Config(op string, err error) error {
	return &BackendError{Kind: KindConfig, Op: op, Err: err}
}

// StreamLimit wraps err as a duration limit signal of op.
func StreamLimit(op string, err error) error {
	return &BackendError{Kind: KindStreamLimit, Op: op, Err: err}
}

// KindOf returns the kind of err. Unclassified errors are transient.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransient
}
