package api

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrKernelFault    = errors.New("kernel_fault")
)

type invalidRequestError struct {
	msg string
	err error
}

func (e invalidRequestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e invalidRequestError) Unwrap() []error {
	if e.err != nil {
		return []error{ErrInvalidRequest, e.err}
	}
	return []error{ErrInvalidRequest}
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// invalidf wraps a validation failure from the tensor or kernel packages.
func invalidf(err error, format string, args ...any) error {
	return invalidRequestError{msg: fmt.Sprintf(format, args...), err: err}
}
