package voice

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported to the user.
type ErrorKind string

const (
	KindRecording ErrorKind = "recording_error"
	KindNetwork   ErrorKind = "network_error"
	KindSpeech    ErrorKind = "speech_error"
)

// Kind sentinels for errors.Is.
var (
	ErrRecording = errors.New("recording error")
	ErrNetwork   = errors.New("network error")
	ErrSpeech    = errors.New("speech error")
)

var (
	ErrBusy              = errors.New("session is busy")
	ErrNotReady          = errors.New("session is not ready")
	ErrEmptyInput        = errors.New("input text is empty")
	ErrNoTranscript      = errors.New("transcription returned no text")
	ErrUnsupportedLocale = errors.New("synthesis does not support locale")
	ErrClosed            = errors.New("orchestrator closed")
)

// Error is a user-facing failure of one operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrRecording:
		return e.Kind == KindRecording
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrSpeech:
		return e.Kind == KindSpeech
	}
	return false
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err when it is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
