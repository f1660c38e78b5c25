package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned by Start while another session is recording.
	ErrSessionActive = errors.New("a capture session is already recording")
	// ErrInitialization tags failures acquiring the surface, stream or sink.
	ErrInitialization = errors.New("recording could not start")
	// ErrRuntime tags failures after recording started.
	ErrRuntime = errors.New("recording failed")
)

// Error is the error delivered to OnRecordingError.
type Error struct {
	Kind error
	Step string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Step)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Step, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func initError(step string, err error) error {
	return &Error{Kind: ErrInitialization, Step: step, Err: err}
}

func runtimeError(step string, err error) error {
	return &Error{Kind: ErrRuntime, Step: step, Err: err}
}
