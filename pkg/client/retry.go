package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// Delay is the fixed wait after an empty body, decode, network or server error.
	Delay time.Duration

	// RateLimitDelay is the wait after a 429 without a usable Retry-After header.
	RateLimitDelay time.Duration

	// MaxRateLimitWaits caps how many 429 waits one call may take. Rate
	// limit waits do not consume attempts.
	MaxRateLimitWaits int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		Delay:             2 * time.Second,
		RateLimitDelay:    5 * time.Second,
		MaxRateLimitWaits: 10,
	}
}

// retryConfig derives the retry policy from the client configuration.
func (c *Client) retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       c.config.MaxRetries,
		Delay:             c.config.RetryDelay,
		RateLimitDelay:    c.config.RateLimitDelay,
		MaxRateLimitWaits: c.config.MaxRateLimitWaits,
	}
}

// attemptFunc performs one upstream attempt.
type attemptFunc func(ctx context.Context) (*Envelope, error)

// retry runs fn until it succeeds, fails permanently, or the policy is used up.
// A 429 waits for its Retry-After and reissues the same attempt; every other
// transient class waits config.Delay and consumes one attempt.
func (c *Client) retry(ctx context.Context, endpoint string, fn attemptFunc) (*Envelope, error) {
	config := c.retryConfig()

	attempt := 1
	rateLimitWaits := 0

	for {
		env, err := fn(ctx)
		if err == nil {
			if attempt > 1 || rateLimitWaits > 0 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Int("rate_limit_waits", rateLimitWaits).
					Msg("Request succeeded after retry")
			}
			return env, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !shouldRetry(apiErr.ErrorClass) {
			return nil, err
		}
		errorClass := string(apiErr.ErrorClass)

		if apiErr.ErrorClass == ErrorClassRateLimit {
			rateLimitWaits++
			if rateLimitWaits > config.MaxRateLimitWaits {
				return nil, c.exhausted(endpoint, attempt, apiErr)
			}

			wait := apiErr.RetryAfter
			if wait <= 0 {
				wait = config.RateLimitDelay
			}
			c.recordCooldown(ctx, wait)

			rateLimitWaitsTotal.Inc()
			retryBackoffSeconds.WithLabelValues(errorClass).Observe(wait.Seconds())
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Rate limited, waiting before reissuing request")

			if err := c.wait(ctx, endpoint, attempt, wait); err != nil {
				return nil, err
			}
			continue
		}

		if attempt >= config.MaxAttempts {
			return nil, c.exhausted(endpoint, attempt, apiErr)
		}

		retriesTotal.WithLabelValues(errorClass).Inc()
		retryBackoffSeconds.WithLabelValues(errorClass).Observe(config.Delay.Seconds())
		c.logger.Warn().
			Err(apiErr).
			Str("endpoint", endpoint).
			Str("error_class", errorClass).
			Int("attempt", attempt).
			Dur("backoff", config.Delay).
			Msg("Transient upstream failure, retrying")

		if err := c.wait(ctx, endpoint, attempt, config.Delay); err != nil {
			return nil, err
		}
		attempt++
	}
}

// wait sleeps for d unless ctx ends first.
func (c *Client) wait(ctx context.Context, endpoint string, attempt int, d time.Duration) error {
	if err := c.sleep(ctx, d); err != nil {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("Context cancelled during retry backoff")
		return fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}
	return nil
}

// exhausted records and builds the retry exhaustion error.
func (c *Client) exhausted(endpoint string, attempts int, last *APIError) error {
	retryExhaustedTotal.WithLabelValues(string(last.ErrorClass)).Inc()
	c.logger.Error().
		Str("endpoint", endpoint).
		Str("error_class", string(last.ErrorClass)).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, last)
}

// recordCooldown shares a 429 wait with other callers of the same tracker.
func (c *Client) recordCooldown(ctx context.Context, wait time.Duration) {
	if c.config.Cooldown == nil {
		return
	}
	if err := c.config.Cooldown.Block(ctx, wait); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record rate limit cooldown")
	}
}

// awaitCooldown holds the caller while a shared cooldown is active.
func (c *Client) awaitCooldown(ctx context.Context, endpoint string) error {
	if c.config.Cooldown == nil {
		return nil
	}

	remaining, err := c.config.Cooldown.Remaining(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cooldown check failed, proceeding")
		return nil
	}
	if remaining <= 0 {
		return nil
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Dur("wait", remaining).
		Msg("Waiting out shared rate limit cooldown")

	if err := c.sleep(ctx, remaining); err != nil {
		return fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}
	return nil
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
