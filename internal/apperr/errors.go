// Package apperr holds the error kinds a mailblog run can fail with.
package apperr

import "errors"

var (
	ErrAccountResolution = errors.New("account resolution failed")
	ErrNoContent         = errors.New("message has no text or html part")
	ErrMalformedDate     = errors.New("malformed date header")
	ErrAccountNotFound   = errors.New("account not found")
	ErrStore             = errors.New("store error")
	ErrRender            = errors.New("render error")
)

// Exit codes from sysexits.h. Mail transfer agents bounce on data errors and
// retry on temporary failures.
const (
	ExitFailure  = 1
	ExitDataErr  = 65
	ExitNoUser   = 67
	ExitSoftware = 70
	ExitTempFail = 75
)

// Kind returns a short name for the error kind of err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAccountResolution):
		return "AccountResolutionError"
	case errors.Is(err, ErrNoContent):
		return "NoContentError"
	case errors.Is(err, ErrMalformedDate):
		return "MalformedDateError"
	case errors.Is(err, ErrAccountNotFound):
		return "AccountNotFoundError"
	case errors.Is(err, ErrStore):
		return "StoreError"
	case errors.Is(err, ErrRender):
		return "RenderError"
	}
	return "Error"
}

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoContent), errors.Is(err, ErrMalformedDate), errors.Is(err, ErrAccountResolution):
		return ExitDataErr
	case errors.Is(err, ErrAccountNotFound):
		return ExitNoUser
	case errors.Is(err, ErrRender):
		return ExitSoftware
	case errors.Is(err, ErrStore):
		return ExitTempFail
	}
	return ExitFailure
}
