package conflux

import (
	"errors"

	"github.com/jpalmerr/conflux/internal/store"
)

var (
	// ErrNotFound is returned when an ID does not refer to a registered
	// health check or a live notification.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidHealthCheck is returned by [Engine.Register] when the
	// definition cannot be scheduled. The wrapped message names the field.
	ErrInvalidHealthCheck = errors.New("invalid health check")

	// ErrInvalidEvent is returned by [Engine.RecordExternalEvent] when the
	// event has no source or title.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrEngineClosed is returned by mutating calls after [Engine.Shutdown].
	ErrEngineClosed = errors.New("engine closed")
)
