package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// AdapterGuard wraps a single adapter call, for example with a circuit
// breaker. It must return the call error unchanged when it lets the call run.
type AdapterGuard interface {
	Guard(ctx context.Context, provider string, call func(ctx context.Context) error) error
}

// GuardChain runs guards outermost first. A guard that rejects the call
// stops the chain.
type GuardChain []AdapterGuard

func (c GuardChain) Guard(ctx context.Context, provider string, call func(ctx context.Context) error) error {
	if call == nil {
		return nil
	}
	next := call
	for i := len(c) - 1; i >= 0; i-- {
		guard, inner := c[i], next
		if guard == nil {
			continue
		}
		next = func(ctx context.Context) error {
			return guard.Guard(ctx, provider, inner)
		}
	}
	return next(ctx)
}

// ResiliencePolicy composes failover over adapters with retry per adapter.
type ResiliencePolicy struct {
	Operation  string
	Retry      RetryOptions
	Conditions []FailoverCondition
	Guard      AdapterGuard
	Logger     Logger
	Metrics    MetricsRecorder
	Fields     map[string]any
}

// Execute runs operation against each adapter in order. Every adapter gets
// its own retry budget; the error left after retries decides whether the
// next adapter is tried.
func Execute[A ProviderAdapter, T any](
	ctx context.Context,
	adapters []A,
	policy ResiliencePolicy,
	operation AdapterOperation[A, T],
) (T, error) {
	var zero T
	if operation == nil {
		return zero, NewIntegrationError("", ErrorCodeInvalidOptions, "resilient operation is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now().UTC()
	obs := newOperationObserver(policy.Logger, policy.Metrics)
	name := normalizeOperation(policy.Operation)
	if name == "" {
		name = "provider_operation"
	}

	result, err := executeWithFailover(ctx, adapters, policy.Conditions, func(ctx context.Context, adapter A) (T, error) {
		provider := adapter.Provider()
		retry := policy.Retry
		userOnRetry := retry.OnRetry
		retry.OnRetry = func(attempt RetryAttempt) {
			fields := cloneFields(policy.Fields)
			fields["provider"] = provider
			fields["attempt"] = attempt.Attempt
			fields["delay_ms"] = attempt.Delay.Milliseconds()
			fields["error"] = attempt.Err.Error()
			fields["error_code"] = ErrorCode(attempt.Err)
			obs.logInfo(ctx, name+" retrying", fields)
			obs.recordCounter(ctx, "integrations."+name+".retries", 1, map[string]string{"provider": provider})
			if userOnRetry != nil {
				userOnRetry(attempt)
			}
		}
		return WithRetry(ctx, func(ctx context.Context, _ int) (T, error) {
			if policy.Guard == nil {
				return operation(ctx, adapter)
			}
			var out T
			guardErr := policy.Guard.Guard(ctx, provider, func(ctx context.Context) error {
				value, callErr := operation(ctx, adapter)
				if callErr == nil {
					out = value
				}
				return callErr
			})
			if guardErr != nil {
				return zero, guardErr
			}
			return out, nil
		}, retry)
	}, func(attempt FailoverAttempt) {
		if !attempt.Advanced {
			return
		}
		fields := cloneFields(policy.Fields)
		fields["provider"] = attempt.Provider
		fields["adapter_index"] = attempt.Index
		fields["error"] = attempt.Err.Error()
		if condition, ok := FailoverConditionOf(attempt.Err); ok {
			fields["failover_condition"] = string(condition)
		}
		obs.logInfo(ctx, name+" failing over", fields)
		obs.recordCounter(ctx, "integrations."+name+".failovers", 1, map[string]string{"provider": attempt.Provider})
	})

	fields := cloneFields(policy.Fields)
	fields["adapters"] = len(adapters)
	if err != nil {
		fields["error_code"] = ErrorCode(err)
	}
	obs.observe(ctx, startedAt, name, err, fields)
	return result, err
}

// operationObserver logs and records metrics for operations that do not run
// inside a Controller.
type operationObserver struct {
	logger  Logger
	metrics MetricsRecorder
}

func newOperationObserver(logger Logger, metrics MetricsRecorder) operationObserver {
	if logger == nil {
		logger = glog.Nop()
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return operationObserver{logger: logger, metrics: metrics}
}
