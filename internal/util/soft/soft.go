// Package soft wraps calls to optional collaborators whose failure must
// degrade to a default instead of failing the caller.
package soft

import (
	"go.uber.org/zap"
)

// Result holds the outcome of a soft dependency call
type Result[T any] struct {
	Value T
	Err   error
}

// Try runs fn and captures its outcome
func Try[T any](fn func() (T, error)) Result[T] {
	v, err := fn()
	return Result[T]{Value: v, Err: err}
}

// OK reports whether the call succeeded
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Or returns the value, or def when the call failed
func (r Result[T]) Or(def T) T {
	if r.Err != nil {
		return def
	}
	return r.Value
}

// Log records a failure at warn level and returns r unchanged
func (r Result[T]) Log(logger *zap.Logger, op string) Result[T] {
	if r.Err != nil && logger != nil {
		logger.Warn("soft dependency failed, using default",
			zap.String("op", op),
			zap.Error(r.Err))
	}
	return r
}

// Do runs fn and logs a failure instead of returning it.
// Returns true when fn succeeded.
func Do(logger *zap.Logger, op string, fn func() error) bool {
	return Try(func() (struct{}, error) { return struct{}{}, fn() }).Log(logger, op).OK()
}
