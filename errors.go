package main

import (
	"errors"
	"fmt"
)

// Failure kinds. Every phase failure wraps exactly one of these so
// callers can classify with errors.Is.
var (
	ErrPathResolution = errors.New("path resolution failed")
	ErrLaunch         = errors.New("browser launch failed")
	ErrNavigation     = errors.New("navigation failed")
	ErrUpload         = errors.New("upload failed")
	ErrRenderTimeout  = errors.New("render timeout")
	ErrCapture        = errors.New("screenshot capture failed")
)

// Phase names as they appear in logs and run reports.
const (
	PhaseResolve  = "resolve"
	PhaseLaunch   = "launch"
	PhaseNavigate = "navigate"
	PhaseUpload   = "upload"
	PhaseRender   = "render-wait"
	PhaseSettle   = "settle"
	PhaseCapture  = "capture"
)

// PhaseError ties a failure kind and its cause to the phase that
// produced it.
type PhaseError struct {
	Phase string
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *PhaseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func failPhase(phase string, kind, err error) *PhaseError {
	if err == nil {
		err = kind
	}
	return &PhaseError{Phase: phase, Kind: kind, Err: err}
}

// IsRetryable reports whether another attempt could plausibly succeed.
// Navigation and render waits are timing-sensitive; everything else is
// a hard failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNavigation) || errors.Is(err, ErrRenderTimeout)
}
