package core

import "context"

// AdapterOperation runs one provider call against the selected adapter.
type AdapterOperation[A ProviderAdapter, T any] func(ctx context.Context, adapter A) (T, error)

type FailoverAttempt struct {
	Index    int
	Provider string
	Err      error
	// Advanced is true when the error moved execution to the next adapter.
	Advanced bool
}

// ExecuteWithFailover tries adapters in order. Errors whose failover
// condition is in allowed advance to the next adapter; any other error is
// returned at once. Exhaustion returns the last error unmodified.
func ExecuteWithFailover[A ProviderAdapter, T any](
	ctx context.Context,
	adapters []A,
	allowed []FailoverCondition,
	operation AdapterOperation[A, T],
) (T, error) {
	return executeWithFailover(ctx, adapters, allowed, operation, nil)
}

func executeWithFailover[A ProviderAdapter, T any](
	ctx context.Context,
	adapters []A,
	allowed []FailoverCondition,
	operation AdapterOperation[A, T],
	observe func(FailoverAttempt),
) (T, error) {
	var zero T
	if operation == nil {
		return zero, NewIntegrationError("", ErrorCodeInvalidOptions, "failover operation is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	tried := 0
	for index, adapter := range adapters {
		if any(adapter) == nil {
			continue
		}
		tried++
		result, err := operation(ctx, adapter)
		if err == nil {
			return result, nil
		}
		lastErr = err
		advance := ShouldFailover(err, allowed)
		if observe != nil {
			observe(FailoverAttempt{
				Index:    index,
				Provider: adapter.Provider(),
				Err:      err,
				Advanced: advance && index < len(adapters)-1,
			})
		}
		if !advance {
			return zero, err
		}
	}
	if tried == 0 {
		return zero, NewIntegrationError("", ErrorCodeNoAdapters, ErrNoAdaptersAvailable.Message, nil)
	}
	return zero, lastErr
}
