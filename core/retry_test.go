package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, delay time.Duration) error {
		*delays = append(*delays, delay)
		return nil
	}
}

func TestWithRetrySucceedsOnFirstCall(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), func(context.Context, int) (string, error) {
		calls++
		return "ok", nil
	}, RetryOptions{MaxAttempts: 3, Sleep: noSleep})
	if err != nil {
		t.Fatalf("with retry: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Fatalf("expected one call returning ok, got %d calls and %q", calls, result)
	}
}

func TestWithRetryExhaustsAttemptsAndReturnsOriginalError(t *testing.T) {
	sentinel := NewProviderUnavailableError("twilio")
	calls := 0
	_, err := WithRetry(context.Background(), func(context.Context, int) (int, error) {
		calls++
		return 0, sentinel
	}, RetryOptions{MaxAttempts: 3, Sleep: noSleep})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr != sentinel {
		t.Fatalf("expected the original error pointer, got %#v", err)
	}
}

func TestWithRetryRetriesUnknownErrors(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	_, err := WithRetry(context.Background(), func(context.Context, int) (int, error) {
		calls++
		return 0, sentinel
	}, RetryOptions{MaxAttempts: 3, Sleep: noSleep})
	if calls != 3 || err != sentinel {
		t.Fatalf("expected 3 calls and the original error, got %d calls and %v", calls, err)
	}
}

func TestWithRetryStopsOnPermanentErrors(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), func(context.Context, int) (int, error) {
		calls++
		return 0, NewInvalidNumberError("twilio", "12")
	}, RetryOptions{MaxAttempts: 5, Sleep: noSleep})
	if calls != 1 {
		t.Fatalf("expected permanent error to stop after 1 call, got %d", calls)
	}
	if ErrorCode(err) != string(ProviderErrorInvalidNumber) {
		t.Fatalf("expected INVALID_NUMBER, got %v", err)
	}
}

func TestWithRetryUsesExponentialScheduleWithCap(t *testing.T) {
	var delays []time.Duration
	attempts := []int{}
	_, _ = WithRetry(context.Background(), func(_ context.Context, attempt int) (int, error) {
		attempts = append(attempts, attempt)
		return 0, errors.New("fail")
	}, RetryOptions{
		MaxAttempts: 6,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		Sleep:       recordingSleep(&delays),
	})
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
	}
	if len(delays) != len(expected) {
		t.Fatalf("expected %d sleeps, got %v", len(expected), delays)
	}
	for i := range expected {
		if delays[i] != expected[i] {
			t.Fatalf("expected delay %d to be %s, got %s", i, expected[i], delays[i])
		}
	}
	if len(attempts) != 6 || attempts[0] != 1 || attempts[5] != 6 {
		t.Fatalf("expected attempts 1..6, got %v", attempts)
	}
}

func TestRetryOptionsDelayMatchesSchedule(t *testing.T) {
	opts := DefaultRetryOptions()
	if opts.Delay(1) != time.Second || opts.Delay(2) != 2*time.Second || opts.Delay(3) != 4*time.Second {
		t.Fatalf("unexpected default schedule %s %s %s", opts.Delay(1), opts.Delay(2), opts.Delay(3))
	}
	if opts.Delay(10) != 30*time.Second {
		t.Fatalf("expected delay to cap at 30s, got %s", opts.Delay(10))
	}
}

func TestWithRetryZeroDelayNeverSleepsForLong(t *testing.T) {
	var delays []time.Duration
	_, _ = WithRetry(context.Background(), func(context.Context, int) (int, error) {
		return 0, errors.New("fail")
	}, RetryOptions{MaxAttempts: 3, Sleep: recordingSleep(&delays)})
	for _, delay := range delays {
		if delay != 0 {
			t.Fatalf("expected zero delays, got %v", delays)
		}
	}
}

func TestRetryOptionsValidate(t *testing.T) {
	cases := []RetryOptions{
		{MaxAttempts: -1},
		{MaxAttempts: 1, BaseDelay: -time.Second},
		{MaxAttempts: 1, BaseDelay: 2 * time.Second, MaxDelay: time.Second},
	}
	for _, opts := range cases {
		err := opts.Validate()
		if !IsErrorCode(err, ErrorCodeInvalidOptions) {
			t.Fatalf("expected INVALID_OPTIONS for %+v, got %v", opts, err)
		}
		_, runErr := WithRetry(context.Background(), func(context.Context, int) (int, error) {
			t.Fatalf("operation must not run with invalid options")
			return 0, nil
		}, opts)
		if !IsErrorCode(runErr, ErrorCodeInvalidOptions) {
			t.Fatalf("expected WithRetry to reject %+v, got %v", opts, runErr)
		}
	}
}

func TestWithRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, func(context.Context, int) (int, error) {
		calls++
		cancel()
		return 0, NewProviderUnavailableError("a")
	}, RetryOptions{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call before cancellation, got %d", calls)
	}
}

func TestWithRetryCustomRetryIfAndOnRetry(t *testing.T) {
	var observed []RetryAttempt
	calls := 0
	_, err := WithRetry(context.Background(), func(context.Context, int) (int, error) {
		calls++
		return 0, NewInsufficientFundsError("stripe")
	}, RetryOptions{
		MaxAttempts: 3,
		RetryIf:     func(error) bool { return true },
		Sleep:       noSleep,
		OnRetry:     func(attempt RetryAttempt) { observed = append(observed, attempt) },
	})
	if calls != 3 || err == nil {
		t.Fatalf("expected custom RetryIf to retry permanent errors, got %d calls", calls)
	}
	if len(observed) != 2 || observed[0].Attempt != 1 || observed[1].Attempt != 2 {
		t.Fatalf("expected OnRetry for attempts 1 and 2, got %+v", observed)
	}
}

func TestRetryUntypedConvenience(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return NewProviderTimeoutError("a")
		}
		return nil
	}, RetryOptions{MaxAttempts: 3, Sleep: noSleep})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got %d calls and %v", calls, err)
	}
}
