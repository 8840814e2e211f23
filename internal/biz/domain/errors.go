package domain

import (
	"errors"
	"fmt"
)

// ErrTransportNotReady is returned when the chat transport has not learned its own identity yet
var ErrTransportNotReady = errors.New("transport not ready")

// TransportError wraps a failure of the chat transport
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is a failure of the generation backend: non-2xx status,
// malformed body, or connection failure
type BackendError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend: status %d: %s", e.Provider, e.StatusCode, truncateBody(e.Body))
	}
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// FetchError is a failure of the page renderer or search service
type FetchError struct {
	Source string // "page" or "search"
	Target string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Source, e.Target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchedulingFormatError is a malformed scheduling command
type SchedulingFormatError struct {
	Input  string
	Reason string
}

func (e *SchedulingFormatError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %s", e.Input, e.Reason)
}

func truncateBody(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
