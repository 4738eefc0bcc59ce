package util

import (
	"context"
	"time"

	"hlsgrab/models"
)

// Clock abstracts waiting so backoff can be tested without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

var SystemClock Clock = systemClock{}

// RetryPolicy bounds the attempts made for a single request.
// Backoff receives the number of failed attempts so far (starting at 1).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(failures int) time.Duration
	Clock       Clock
}

func NewRetryPolicy(config *models.DownloadConfig) *RetryPolicy {
	config = models.GetDownloadConfig(config)
	return &RetryPolicy{
		MaxAttempts: config.RetryAttempts,
		Backoff:     ExponentialBackoff(config.RetryDelay, config.MaxRetryDelay),
		Clock:       SystemClock,
	}
}

// ExponentialBackoff doubles base after every failure, capped at maxDelay.
func ExponentialBackoff(base time.Duration, maxDelay time.Duration) func(int) time.Duration {
	return func(failures int) time.Duration {
		if failures < 1 {
			failures = 1
		}
		delay := base
		for i := 1; i < failures; i++ {
			delay *= 2
			if delay >= maxDelay || delay <= 0 {
				return maxDelay
			}
		}
		return min(delay, maxDelay)
	}
}

// Wait blocks for the backoff that follows the given number of failures.
func (p *RetryPolicy) Wait(ctx context.Context, failures int) error {
	if p.Backoff == nil {
		return ctx.Err()
	}
	delay := p.Backoff(failures)
	if delay <= 0 {
		return ctx.Err()
	}
	clock := p.Clock
	if clock == nil {
		clock = SystemClock
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(delay):
		return nil
	}
}

func (p *RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
