package stack

import (
	"errors"

	"github.com/sweeney/contact-sensor/internal/apperr"
)

var (
	// ErrQueueFull is returned when the callback queue or the out-buffer
	// wait list is full.
	ErrQueueFull = apperr.Wrap(apperr.ResourceExhausted, "stack", errors.New("callback queue full"))

	// ErrInvalidState is returned when an operation is not allowed in the
	// current network or identify state.
	ErrInvalidState = apperr.Wrap(apperr.ProtocolRejected, "stack", errors.New("invalid state"))

	// ErrUnknownAttribute is returned for attributes not registered on an endpoint.
	ErrUnknownAttribute = apperr.Wrap(apperr.InvalidArgument, "stack", errors.New("unknown attribute"))

	// ErrBadType is returned when a written value has the wrong data type.
	ErrBadType = apperr.Wrap(apperr.InvalidArgument, "stack", errors.New("attribute type mismatch"))

	// ErrReadOnly is returned by checked writes to read-only attributes.
	ErrReadOnly = apperr.Wrap(apperr.InvalidArgument, "stack", errors.New("attribute is read only"))

	// ErrTableFull is returned when no reporting slot is free.
	ErrTableFull = apperr.Wrap(apperr.ResourceExhausted, "stack", errors.New("reporting table full"))

	// ErrBadBuffer is returned for buffer ids that are not allocated.
	ErrBadBuffer = apperr.Wrap(apperr.InvalidArgument, "stack", errors.New("bad buffer id"))

	// ErrRunning is returned by Run when the engine is already running.
	ErrRunning = errors.New("stack: engine already running")
)
