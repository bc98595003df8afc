package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps network failures; the server never answered.
	ErrTransport = errors.New("transport error")
	// ErrUnauthorized matches 401 responses and admin calls made without a session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrClosed is reported by resources of a closed Client.
	ErrClosed = errors.New("client closed")
)

// StatusError is a non-2xx answer. Message is the body's "status" field
// when present.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}
