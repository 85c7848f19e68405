package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOutsideScope    = errors.New("path outside allowed roots")
	ErrAdminStatement  = errors.New("administrative statement not allowed")
	ErrMethod          = errors.New("unsupported method")
	ErrRequestTimeout  = errors.New("request timed out")
	ErrNotFound        = errors.New("not found")
	ErrClosed          = errors.New("bridge closed")
)

// CapabilityError is a failed capability call. Its message is what the
// script sees as the thrown Error's message.
type CapabilityError struct {
	Capability string
	Op         string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Capability, e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

func capErr(capability, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return err
	}
	return &CapabilityError{Capability: capability, Op: op, Err: err}
}

func invalid(format string, args ...interface{}) error {
	return errorf(ErrInvalidArgument, format, args...)
}

func errorf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
