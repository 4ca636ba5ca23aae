package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// RetryConfig bounds the per-call retry loop. Defaults follow the upstream
// service: up to 7 attempts with exponential backoff, waits capped at 60s.
type RetryConfig struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 7,
		BaseWait:    time.Second,
		MaxWait:     60 * time.Second,
	}
}

// ChatWithRetry calls c.Chat, retrying transient failures with exponential
// backoff. Context cancellation and client-side (4xx) errors stop the loop
// immediately.
func ChatWithRetry(ctx context.Context, c Client, req Request, result any, cfg RetryConfig) (*Response, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetry()
	}

	wait := cfg.BaseWait
	if wait <= 0 {
		wait = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		resp, err := c.Chat(ctx, req, result)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(ctx, err) || attempt == cfg.MaxAttempts {
			break
		}

		slog.WarnContext(ctx, "llm call failed, backing off",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
	return nil, lastErr
}

// IsRetryable classifies an error from either provider: rate limits,
// server errors, and network failures retry; everything else does not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return retryableStatus(ctx, oaiErr.StatusCode)
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return retryableStatus(ctx, antErr.StatusCode)
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

func retryableStatus(ctx context.Context, code int) bool {
	switch {
	case code == 429:
		slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", code)
		return true
	case code >= 500:
		slog.WarnContext(ctx, "llm server error, will retry", "status_code", code)
		return true
	default:
		slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", code)
		return false
	}
}
