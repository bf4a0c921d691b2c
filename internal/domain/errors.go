package domain

import (
	"context"
	"errors"
	"time"
)

// Common domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotCached         = errors.New("entry not cached")
	ErrInvalidContent    = errors.New("invalid audio content")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")
	ErrEmptyFile         = errors.New("downloaded file is empty")
	ErrContentType       = errors.New("content type not allowed")
	ErrInsufficientSpace = errors.New("insufficient cache space")

	// Scheduling errors
	ErrDeferred    = errors.New("transfer deferred by device state")
	ErrQueueFull   = errors.New("download queue is full")
	ErrCancelled   = errors.New("transfer cancelled")
	ErrQueueClosed = errors.New("download queue is closed")

	// State machine errors
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// ErrorKind classifies fetch failures
type ErrorKind string

// Error kinds
const (
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindInvalidContent ErrorKind = "invalid_content"
	KindPermission     ErrorKind = "permission"
	KindStorage        ErrorKind = "storage"
	KindCancelled      ErrorKind = "cancelled"
	KindDeferred       ErrorKind = "deferred"
	KindQueueFull      ErrorKind = "queue_full"
)

// Retryable returns true for kinds the executor retries locally
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout
}

// FetchError is the typed error surfaced for a failed fetch
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error

	// Attempts is the number of requests issued before giving up
	Attempts int
}

// Error returns the error message
func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError
func NewFetchError(kind ErrorKind, rawURL string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}

// KindOf returns the kind of a fetch error.
// Errors that carry no kind are classified from well-known sentinels.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, true
	case errors.Is(err, ErrDeferred):
		return KindDeferred, true
	case errors.Is(err, ErrQueueFull):
		return KindQueueFull, true
	case errors.Is(err, ErrInvalidContent), errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrEmptyFile), errors.Is(err, ErrContentType):
		return KindInvalidContent, true
	}
	return "", false
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// RetryableError represents an error that should trigger a retry.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried.
// Network and timeout fetch errors are retryable even without the wrapper.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind.Retryable()
	}
	return false
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
