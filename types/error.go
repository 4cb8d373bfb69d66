package types

import (
	"time"

	"github.com/juju/errors"
)

var (
	_ error = &RetryError{}
	_ error = &FatalError{}
	_ error = &SkipError{}
)

// NewRetryError asks for another try after backoff, overriding the task's retry delay.
// The try still counts against the task's retries.
func NewRetryError(otherErr error, backoff time.Duration) error {
	return &RetryError{baseError: newBaseErr(otherErr), Backoff: backoff}
}

func NewRetryErrorf(backoff time.Duration, format string, args ...interface{}) error {
	return NewRetryError(errors.Errorf(format, args...), backoff)
}

// NewFatalError fails the task instance without consuming the remaining retries.
func NewFatalError(otherErr error) error {
	return &FatalError{baseError: newBaseErr(otherErr)}
}

func NewFatalErrorf(format string, args ...interface{}) error {
	return NewFatalError(errors.Errorf(format, args...))
}

// NewSkipError marks the task instance skipped.
func NewSkipError(otherErr error) error {
	return &SkipError{baseError: newBaseErr(otherErr)}
}

func NewSkipErrorf(format string, args ...interface{}) error {
	return NewSkipError(errors.Errorf(format, args...))
}

func newBaseErr(otherErr error) *baseError {
	if otherErr == nil {
		otherErr = errors.New("unknown error")
	}
	return &baseError{otherErr}
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) Unwrap() error {
	return e.BaseErr
}

type RetryError struct {
	*baseError
	Backoff time.Duration
}

type FatalError struct {
	*baseError
}

type SkipError struct {
	*baseError
}

func IsFatal(err error) bool {
	var e *FatalError
	return errors.As(err, &e)
}

func IsSkip(err error) bool {
	var e *SkipError
	return errors.As(err, &e)
}

// RetryBackoff returns the explicit backoff carried by err, if any.
func RetryBackoff(err error) (time.Duration, bool) {
	var e *RetryError
	if errors.As(err, &e) {
		return e.Backoff, true
	}
	return 0, false
}
