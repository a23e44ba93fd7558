// Package apperr classifies the failures the controller has to tell apart:
// fatal configuration errors, transient hardware errors, protocol rejections
// and resource exhaustion.
package apperr

import "errors"

// Code is a stable error class. It is comparable and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK                Code = "ok"
	ConfigFailed      Code = "config_failed"
	HardwareTransient Code = "hardware_transient"
	ProtocolRejected  Code = "protocol_rejected"
	ResourceExhausted Code = "resource_exhausted"
	InvalidArgument   Code = "invalid_argument"

	Unknown Code = "error" // generic fallback
)

// Error keeps the class, the failing operation and the cause.
type Error struct {
	C   Code
	Op  string
	Err error
}

func (e *Error) Error() string {
	msg := string(e.C)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Code() Code    { return e.C }

// Wrap classifies err. A nil err stays nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{C: c, Op: op, Err: err}
}

// Of extracts the Code carried by err, defaulting to Unknown.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	var e *Error
	if errors.As(err, &e) {
		return e.C
	}
	return Unknown
}

// Is reports whether err carries class c.
func Is(err error, c Code) bool {
	return Of(err) == c
}
