package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with underlying error",
			err:  errors.New("connection timeout"),
			want: "connection timeout",
		},
		{
			name: "nil error",
			err:  nil,
			want: "retryable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := NewRetryableError(tt.err, time.Second)
			if got := re.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	re := NewRetryableError(underlying, time.Second)

	if got := re.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("err"), time.Second),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), time.Second)),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("regular error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "network fetch error",
			err:  NewFetchError(KindNetwork, "https://a/b.mp3", errors.New("reset")),
			want: true,
		},
		{
			name: "invalid content is not retryable",
			err:  NewFetchError(KindInvalidContent, "https://a/b.mp3", ErrEmptyFile),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOk       bool
	}{
		{
			name:         "retryable error",
			err:          NewRetryableError(errors.New("err"), 5*time.Minute),
			wantDuration: 5 * time.Minute,
			wantOk:       true,
		},
		{
			name:         "wrapped retryable error",
			err:          fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), 30*time.Second)),
			wantDuration: 30 * time.Second,
			wantOk:       true,
		},
		{
			name:         "regular error",
			err:          errors.New("regular error"),
			wantDuration: 0,
			wantOk:       false,
		},
		{
			name:         "nil error",
			err:          nil,
			wantDuration: 0,
			wantOk:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, ok := GetRetryAfter(tt.err)
			if duration != tt.wantDuration || ok != tt.wantOk {
				t.Errorf("GetRetryAfter() = (%v, %v), want (%v, %v)",
					duration, ok, tt.wantDuration, tt.wantOk)
			}
		})
	}
}

func TestErrorsAsUnwrap(t *testing.T) {
	re := NewRetryableError(ErrQueueFull, time.Second)
	if !errors.Is(re, ErrQueueFull) {
		t.Error("RetryableError should unwrap to ErrQueueFull")
	}

	fe := NewFetchError(KindInvalidContent, "https://a/b.mp3", ErrEmptyFile)
	if !errors.Is(fe, ErrEmptyFile) {
		t.Error("FetchError should unwrap to ErrEmptyFile")
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want string
	}{
		{
			name: "full",
			err:  NewFetchError(KindNetwork, "https://a/b.mp3", errors.New("reset")),
			want: "network https://a/b.mp3: reset",
		},
		{
			name: "no url",
			err:  NewFetchError(KindStorage, "", errors.New("disk full")),
			want: "storage: disk full",
		},
		{
			name: "kind only",
			err:  NewFetchError(KindTimeout, "", nil),
			want: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantOk   bool
	}{
		{"nil", nil, "", false},
		{"plain", errors.New("x"), "", false},
		{"fetch error", NewFetchError(KindPermission, "u", nil), KindPermission, true},
		{"wrapped fetch error", fmt.Errorf("outer: %w", NewFetchError(KindStorage, "u", nil)), KindStorage, true},
		{"context canceled", context.Canceled, KindCancelled, true},
		{"cancelled sentinel", ErrCancelled, KindCancelled, true},
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"deferred", ErrDeferred, KindDeferred, true},
		{"queue full", fmt.Errorf("enqueue: %w", ErrQueueFull), KindQueueFull, true},
		{"too large", ErrFileTooLarge, KindInvalidContent, true},
		{"content type", ErrContentType, KindInvalidContent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := KindOf(tt.err)
			if kind != tt.wantKind || ok != tt.wantOk {
				t.Errorf("KindOf() = (%v, %v), want (%v, %v)", kind, ok, tt.wantKind, tt.wantOk)
			}
		})
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindNetwork:        true,
		KindTimeout:        true,
		KindInvalidContent: false,
		KindPermission:     false,
		KindStorage:        false,
		KindCancelled:      false,
		KindDeferred:       false,
		KindQueueFull:      false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", kind, got, want)
		}
	}
}
