package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is the default maximum number of retries
	DefaultMaxRetries = 3
	// DefaultInitialDelay is the default initial delay for exponential backoff
	DefaultInitialDelay = 1 * time.Second
	// DefaultMaxInterval is the default maximum interval for backoff
	DefaultMaxInterval = 30 * time.Second
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxInterval  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxInterval:  DefaultMaxInterval,
	}
}

// hintedBackOff waits at least as long as the provider asked for.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

// WithRetry wraps a client so retryable *Error failures are retried with
// exponential backoff, honouring RetryAfter hints.
func WithRetry(client Client, policy RetryPolicy, logger zerolog.Logger) Client {
	log := logger.With().Str("component", "llmRetry").Logger()
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = policy.InitialDelay
		eb.MaxInterval = policy.MaxInterval
		eb.MaxElapsedTime = 0
		b := &hintedBackOff{BackOff: backoff.WithMaxRetries(eb, policy.MaxRetries)}

		attempt := 0
		op := func() (*Response, error) {
			attempt++
			resp, err := client.Synchronous(ctx, req)
			if err == nil {
				return resp, nil
			}
			if !IsRetryableError(err) {
				return nil, backoff.Permanent(err)
			}
			if after := ExtractRetryAfter(err); after != nil {
				b.hint = *after
			}
			return nil, err
		}
		notify := func(err error, wait time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying LLM request")
		}
		return backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), notify)
	})
}
