package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("max retries exceeded")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassEmptyBody represents a response with no body.
	ErrorClassEmptyBody ErrorClass = "empty_body"

	// ErrorClassDecode represents a body that is not a JSON envelope.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassUpstream represents an explicit success:false envelope.
	ErrorClassUpstream ErrorClass = "upstream"
)

// APIError is a classified failure of a single upstream call.
type APIError struct {
	Endpoint   string
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// RetryAfter is the wait requested by a 429 response.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ashby %s error on %s (status %d): %s: %v",
			e.ErrorClass, e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("ashby %s error on %s (status %d): %s",
		e.ErrorClass, e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure belongs to a retried class.
func (e *APIError) Transient() bool {
	return shouldRetry(e.ErrorClass)
}

// Message extracts a caller-facing message from err: the upstream message
// of an *APIError when present, otherwise err's text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		if errors.Is(err, ErrRetryExhausted) && apiErr.ErrorClass == ErrorClassRateLimit {
			return "Max retries exceeded"
		}
		return apiErr.Message
	}
	return err.Error()
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassUpstream:
		// An explicit rejection will not change on retry
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork,
		ErrorClassEmptyBody, ErrorClassDecode:
		return true
	default:
		return false
	}
}
