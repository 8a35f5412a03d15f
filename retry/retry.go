// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry runs operations with exponential backoff.
//
// Only errors the policy classifies as retryable are retried. By default that
// is core.IsTransient: provider timeouts, 5xx and 429 responses, and
// connection failures. Anything else fails immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/coverdex/core"
)

// ErrInvalidPolicy indicates a policy with a negative retry count or delay.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy controls how an operation is retried.
type Policy struct {
	// MaxRetries is how many times a failed attempt may be repeated.
	// Zero means the operation runs once.
	MaxRetries int

	// BaseDelay is the wait before the first retry; it doubles on each retry.
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts. Zero means uncapped.
	MaxDelay time.Duration

	// Retryable decides whether an error may be retried.
	// Nil means core.IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 || p.BaseDelay < 0 || p.MaxDelay < 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Delay returns the wait before retry number n (1-based).
func (p Policy) Delay(n int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return core.IsTransient(err)
}

// Do runs op until it succeeds, fails with a non-retryable error, or runs out
// of retries. The error from the last attempt is returned. If ctx ends while
// waiting between attempts, ctx.Err() is returned.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry", "retries", attempt)
			}
			return nil
		}

		if !policy.retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxRetries {
			slog.Debug("retries exhausted", "retries", attempt, "err", lastErr)
			return lastErr
		}

		delay := policy.Delay(attempt + 1)
		slog.Debug("operation failed, will retry", "attempt", attempt+1, "delay", delay, "err", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
