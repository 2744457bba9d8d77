package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sweetpotato0/deliberate/message"
	"github.com/sweetpotato0/deliberate/pkg/logging"
)

// RetryConfig controls the retrying wrapper.
type RetryConfig struct {
	MaxAttempts     int           // Total attempts including the first (default 3)
	InitialInterval time.Duration // First backoff delay (default 500ms)
	MaxInterval     time.Duration // Backoff ceiling (default 8s)
	CallTimeout     time.Duration // Per-attempt timeout, 0 disables (default 60s)
}

// DefaultRetryConfig returns the retry policy used for main completion calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		CallTimeout:     60 * time.Second,
	}
}

// retryingClient retries transient failures with exponential backoff.
// Permanent failures are surfaced immediately.
type retryingClient struct {
	inner  Client
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry wraps c so that transient failures are retried with exponential
// backoff. Malformed-input and other permanent failures are never retried.
func WithRetry(c Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 8 * time.Second
	}
	return &retryingClient{
		inner:  c,
		cfg:    cfg,
		logger: logging.WithComponent("llm_retry"),
	}
}

func (r *retryingClient) Generate(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialInterval
	policy.MaxInterval = r.cfg.MaxInterval

	var resp *message.Message
	attempt := 0
	op := func() error {
		attempt++
		callCtx := ctx
		cancel := func() {}
		if r.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		}
		out, err := r.inner.Generate(callCtx, msgs)
		cancel()
		if err == nil {
			resp = out
			return nil
		}
		if Classify(err) == ClassTransient && attempt < r.cfg.MaxAttempts {
			r.logger.Warn("transient completion failure, retrying",
				"attempt", attempt,
				"max_attempts", r.cfg.MaxAttempts,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}
