package server

import (
	"errors"
	"fmt"
)

// ErrStopped is the cancel cause of a run ended by Stop.
var ErrStopped = errors.New("server stopped")

// StartupError is returned by Controller.Start when a run could not begin.
// No part of the run is left running.
type StartupError struct {
	Stage string // config, wildcards, listen
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("server start (%s): %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

func startupErr(stage string, err error) error {
	return &StartupError{Stage: stage, Err: err}
}
