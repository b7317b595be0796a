package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means a required endpoint is empty.
	ErrNotConfigured = errors.New("not configured")
	// ErrNoFileSelected means an upload was requested without a selected file.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrEmptyInput means the question was blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy means a chat query is already pending.
	ErrBusy = errors.New("a query is already pending")
	// ErrUploadInProgress means another upload has not resolved yet.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrNoSuchExample means a quick-fill index is out of range.
	ErrNoSuchExample = errors.New("no such example")
)

// NetworkError is a transport failure or timeout; no response status was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-success response status.
type ServerError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: server error: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server error: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// IsNetworkError reports whether err wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsServerError reports whether err wraps a *ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
