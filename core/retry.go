package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelay   = time.Second
	DefaultRetryMaxDelay    = 30 * time.Second
)

type RetryAttempt struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RetryIf decides whether a failed attempt is retried. Defaults to
	// IsRetryable.
	RetryIf func(error) bool
	// Sleep waits between attempts. Defaults to a timer that honours ctx.
	Sleep   func(ctx context.Context, delay time.Duration) error
	OnRetry func(RetryAttempt)
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: DefaultRetryMaxAttempts,
		BaseDelay:   DefaultRetryBaseDelay,
		MaxDelay:    DefaultRetryMaxDelay,
	}
}

func (o RetryOptions) Validate() error {
	switch {
	case o.MaxAttempts < 0:
		return NewIntegrationError("", ErrorCodeInvalidOptions, "retry max_attempts must be at least 1", nil)
	case o.BaseDelay < 0:
		return NewIntegrationError("", ErrorCodeInvalidOptions, "retry base_delay must not be negative", nil)
	case o.MaxDelay < 0:
		return NewIntegrationError("", ErrorCodeInvalidOptions, "retry max_delay must not be negative", nil)
	case o.MaxDelay > 0 && o.MaxDelay < o.BaseDelay:
		return NewIntegrationError("", ErrorCodeInvalidOptions, "retry max_delay must be greater than or equal to base_delay", nil)
	}
	return nil
}

// normalized fills defaults. An all-zero schedule uses the default schedule;
// otherwise zero values are taken literally except MaxAttempts.
func (o RetryOptions) normalized() (RetryOptions, error) {
	if err := o.Validate(); err != nil {
		return RetryOptions{}, err
	}
	if o.MaxAttempts == 0 && o.BaseDelay == 0 && o.MaxDelay == 0 {
		defaults := DefaultRetryOptions()
		o.MaxAttempts = defaults.MaxAttempts
		o.BaseDelay = defaults.BaseDelay
		o.MaxDelay = defaults.MaxDelay
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultRetryMaxAttempts
	}
	if o.MaxDelay == 0 && o.BaseDelay > 0 {
		o.MaxDelay = max(DefaultRetryMaxDelay, o.BaseDelay)
	}
	if o.RetryIf == nil {
		o.RetryIf = IsRetryable
	}
	if o.Sleep == nil {
		o.Sleep = waitWithContext
	}
	return o, nil
}

// Delay returns the wait before the attempt that follows attempt n:
// min(BaseDelay * 2^(n-1), MaxDelay).
func (o RetryOptions) Delay(attempt int) time.Duration {
	normalized, err := o.normalized()
	if err != nil || attempt < 1 {
		return 0
	}
	schedule := newBackoffSchedule(normalized)
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = schedule.NextBackOff()
	}
	return delay
}

func newBackoffSchedule(o RetryOptions) backoff.BackOff {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = o.BaseDelay
	schedule.MaxInterval = o.MaxDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxElapsedTime = 0
	schedule.Reset()
	return schedule
}

// WithRetry invokes operation until it succeeds, RetryIf rejects the error
// or MaxAttempts is reached. The final error is returned unmodified.
func WithRetry[T any](ctx context.Context, operation func(ctx context.Context, attempt int) (T, error), opts RetryOptions) (T, error) {
	var zero T
	if operation == nil {
		return zero, NewIntegrationError("", ErrorCodeInvalidOptions, "retry operation is required", nil)
	}
	options, err := opts.normalized()
	if err != nil {
		return zero, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	schedule := newBackoffSchedule(options)
	for attempt := 1; ; attempt++ {
		result, opErr := operation(ctx, attempt)
		if opErr == nil {
			return result, nil
		}
		if attempt >= options.MaxAttempts || !options.RetryIf(opErr) {
			return zero, opErr
		}
		delay := schedule.NextBackOff()
		if options.OnRetry != nil {
			options.OnRetry(RetryAttempt{Attempt: attempt, Delay: delay, Err: opErr})
		}
		if waitErr := options.Sleep(ctx, delay); waitErr != nil {
			return zero, waitErr
		}
	}
}

func Retry(ctx context.Context, operation func(ctx context.Context) error, opts RetryOptions) error {
	if operation == nil {
		return NewIntegrationError("", ErrorCodeInvalidOptions, "retry operation is required", nil)
	}
	_, err := WithRetry(ctx, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts)
	return err
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
