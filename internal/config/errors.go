package config

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownReference marks a calendar source pointing at an id that
	// does not exist in the configuration.
	ErrUnknownReference = errors.New("unknown calendar reference")

	// ErrCycle marks a circular chain of calendar references.
	ErrCycle = errors.New("circular calendar reference")
)

// CycleError reports one witness cycle through the reference graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycle.Error()
	}
	return "circular calendar reference detected: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrCycle }
