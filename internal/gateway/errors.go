package gateway

import (
	"errors"
	"fmt"
)

// ErrApplication matches every *AppError via errors.Is.
var ErrApplication = errors.New("application error")

var (
	errNotStarted     = errors.New("start_response was not called")
	errStartedTwice   = errors.New("start_response was called more than once")
	errBadStatus      = errors.New("malformed status line")
	errBadHeaderName  = errors.New("header name is not a token")
	errBadHeaderValue = errors.New("header value contains CR, LF or NUL")
	errBadLength      = errors.New("malformed Content-Length")
	errBodyTooLong    = errors.New("body is longer than the declared Content-Length")
	errBodyTooShort   = errors.New("body is shorter than the declared Content-Length")
	errResponseDone   = errors.New("response is already complete")
)

// AppError is a violation of the calling convention by the application, or a failure
// the application returned or panicked with.
type AppError struct {
	// Op is where it happened: call, start_response, write or body.
	Op  string
	Err error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("application: %s: %s", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	return target == ErrApplication
}
