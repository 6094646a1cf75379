package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRequestTooLargeError(t *testing.T) {
	err := NewRequestTooLargeError("request too large", nil)
	if !IsRequestTooLargeError(err) {
		t.Error("Expected IsRequestTooLargeError to return true for request too large error")
	}
	if IsRetryableError(err) {
		t.Error("Expected request too large error not to be retryable")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", NewRateLimitError("rate limit", nil, nil), true},
		{"network", NewNetworkError("reset", nil), true},
		{"timeout", NewTimeoutError("slow", nil), true},
		{"provider", NewProviderError("boom", nil), false},
		{"invalid", NewInvalidRequestError("bad", nil), false},
		{"wrapped", fmt.Errorf("calling model: %w", NewNetworkError("reset", nil)), true},
		{"plain", errors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{429, ErrorTypeRateLimit, true},
		{413, ErrorTypeRequestTooLarge, false},
		{504, ErrorTypeTimeout, true},
		{503, ErrorTypeProvider, true},
		{401, ErrorTypeInvalidRequest, false},
		{302, ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromStatus(tt.status, "status", nil)
			if err.Type != tt.wantType {
				t.Errorf("Expected type %v, got %v", tt.wantType, err.Type)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("Expected retryable %v, got %v", tt.retryable, err.Retryable)
			}
			if err.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, err.StatusCode)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	err := FromContext(fmt.Errorf("call: %w", context.DeadlineExceeded))
	var llmErr *Error
	if !errors.As(err, &llmErr) || llmErr.Type != ErrorTypeTimeout {
		t.Errorf("Expected timeout error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Expected timeout error to unwrap to context.DeadlineExceeded")
	}

	plain := errors.New("plain")
	if FromContext(plain) != plain {
		t.Error("Expected unrelated errors to pass through")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}
