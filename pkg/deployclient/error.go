package deployclient

import (
	"errors"
	"fmt"
)

type ExitCode int

// Keep separate to avoid skewing exit codes
const (
	ExitSuccess ExitCode = iota
	ExitInvocationFailure
	ExitAuthenticationFailure
	ExitRequestFailure
	ExitResponseError
	ExitUploadRejected
	ExitInternalError
	ExitTimeout
)

var (
	ErrInvalidIdentifier  = errors.New("application identifier must be two dot-separated lowercase alphanumeric segments, e.g. 'acme.timesheet'")
	ErrFileNotFound       = errors.New("package file does not exist or is not readable")
	ErrInvalidURL         = errors.New("URL must be absolute, including scheme and host")
	ErrInvalidPlatform    = errors.New("platform must be either 'v2' or 'v3'")
	ErrInvalidOutputMode  = errors.New("--verbose and --silent are mutually exclusive")
	ErrCredentialRequired = errors.New("client id and client secret are required")
)

type Error struct {
	Code ExitCode
	Err  error
}

func (err *Error) Error() string {
	return err.Err.Error()
}

func (err *Error) Unwrap() error {
	return err.Err
}

func Errorf(exitCode ExitCode, format string, args ...interface{}) *Error {
	return &Error{
		Code: exitCode,
		Err:  fmt.Errorf(format, args...),
	}
}

func ErrorWrap(exitCode ExitCode, err error) *Error {
	return &Error{
		Code: exitCode,
		Err:  err,
	}
}

func ErrorExitCode(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	e := &Error{}
	if !errors.As(err, &e) {
		return ExitInternalError
	}
	return e.Code
}
