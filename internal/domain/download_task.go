package domain

import (
	"fmt"
	"time"
)

// TransferState is the lifecycle state of one transfer
type TransferState string

// Transfer states
const (
	TransferPending   TransferState = "pending"
	TransferInFlight  TransferState = "in_flight"
	TransferSucceeded TransferState = "succeeded"
	TransferFailed    TransferState = "failed"
	TransferCancelled TransferState = "cancelled"
)

// IsTerminal returns true for states that admit no further transitions
func (s TransferState) IsTerminal() bool {
	return s == TransferSucceeded || s == TransferFailed || s == TransferCancelled
}

var allowedTransitions = map[TransferState][]TransferState{
	TransferPending:  {TransferInFlight, TransferCancelled, TransferFailed},
	TransferInFlight: {TransferSucceeded, TransferFailed, TransferCancelled, TransferPending},
}

// Transfer tracks the state of one download through the executor
type Transfer struct {
	URL          string
	Key          CacheKey
	HighPriority bool
	State        TransferState
	Attempts     int
	LastError    error

	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewTransfer creates a transfer in the pending state
func NewTransfer(rawURL string, key CacheKey, highPriority bool) *Transfer {
	return &Transfer{
		URL:          rawURL,
		Key:          key,
		HighPriority: highPriority,
		State:        TransferPending,
	}
}

// Transition moves the transfer to the next state.
// InFlight may fall back to Pending when the executor defers the request.
func (t *Transfer) Transition(next TransferState) error {
	for _, allowed := range allowedTransitions[t.State] {
		if allowed == next {
			now := time.Now()
			switch {
			case next == TransferInFlight:
				t.StartedAt = &now
			case next.IsTerminal():
				t.FinishedAt = &now
			}
			t.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, t.State, next)
}

// Fail records the error and moves to the matching terminal state
func (t *Transfer) Fail(err error) {
	t.LastError = err
	next := TransferFailed
	if IsKind(err, KindCancelled) {
		next = TransferCancelled
	}
	if IsKind(err, KindDeferred) {
		next = TransferPending
	}
	_ = t.Transition(next)
}

// Duration returns how long the transfer has been (or was) in flight
func (t *Transfer) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	if t.FinishedAt == nil {
		return time.Since(*t.StartedAt)
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// QueueStats represents download queue statistics
type QueueStats struct {
	QueuedCount       int   `json:"queued"`
	HighPriorityCount int   `json:"queued_high_priority"`
	ActiveCount       int   `json:"active"`
	MaxConcurrent     int   `json:"max_concurrent"`
	Dropped           int64 `json:"dropped"`
	Deferred          int64 `json:"deferred"`
}
