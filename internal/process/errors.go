package process

import (
	"errors"
	"fmt"
)

// ErrEmptyCommand is returned when Start receives no arguments.
var ErrEmptyCommand = errors.New("empty command")

// ErrKillTimeout is returned by Stop when the process outlived SIGKILL.
var ErrKillTimeout = errors.New("process did not exit after kill signal")

// SpawnError reports that the external tool could not be launched.
type SpawnError struct {
	ID   string
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("spawn %s (%s): %v", e.Path, e.ID, e.Err)
	}
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
