// Package taisaku provides a Go client for the Taisaku competitor-analysis API.
package taisaku

import (
	"errors"
	"fmt"
)

// Error represents an error from the Taisaku API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("taisaku: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsBlocked returns true if the request was rejected by a guardrail (422).
func IsBlocked(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 422
	}
	return false
}
