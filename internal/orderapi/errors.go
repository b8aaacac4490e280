package orderapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthRequired is returned by authenticated writes when the session
	// holds no usable token or the backend URL is not configured. No request
	// is sent.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotConfigured is returned by unauthenticated calls when the backend
	// URL is missing.
	ErrNotConfigured = errors.New("backend url is not configured")
)

// RequestError is a non-2xx (or success:false) answer from the backend.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return e.Message
}

// NotFound reports whether the backend answered 404.
func (e *RequestError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Unauthorized reports whether the backend rejected the credential.
func (e *RequestError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// MessageOf extracts the text to show an operator for err: the backend
// message for request errors, the error text otherwise.
func MessageOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	if errors.Is(err, ErrAuthRequired) {
		return "Authentication required"
	}
	return err.Error()
}

func statusMessage(status int) string {
	return fmt.Sprintf("Error: %d", status)
}
