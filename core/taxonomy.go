package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type FailoverCondition string

const (
	FailoverServiceUnavailable FailoverCondition = "service_unavailable"
	FailoverRateLimit          FailoverCondition = "rate_limit"
	FailoverTimeout            FailoverCondition = "timeout"
)

// DefaultFailoverConditions lists every transient condition.
func DefaultFailoverConditions() []FailoverCondition {
	return []FailoverCondition{
		FailoverServiceUnavailable,
		FailoverRateLimit,
		FailoverTimeout,
	}
}

func (c FailoverCondition) Valid() bool {
	switch c {
	case FailoverServiceUnavailable, FailoverRateLimit, FailoverTimeout:
		return true
	default:
		return false
	}
}

type IntegrationErrorCode string

const (
	ErrorCodeNotConfigured  IntegrationErrorCode = "NOT_CONFIGURED"
	ErrorCodeInvalidStatus  IntegrationErrorCode = "INVALID_STATUS"
	ErrorCodeInvalidConfig  IntegrationErrorCode = "INVALID_CONFIG"
	ErrorCodeInvalidOptions IntegrationErrorCode = "INVALID_OPTIONS"
	ErrorCodeNoAdapters     IntegrationErrorCode = "NO_ADAPTERS"
	ErrorCodeSuspended      IntegrationErrorCode = "SUSPENDED"
)

// IntegrationError reports configuration and lifecycle faults. It is never
// retried and never triggers failover.
type IntegrationError struct {
	IntegrationType string
	Code            IntegrationErrorCode
	Message         string
	Cause           error
}

var (
	ErrNotConfigured       = &IntegrationError{Code: ErrorCodeNotConfigured, Message: "Integration not configured"}
	ErrInvalidStatus       = &IntegrationError{Code: ErrorCodeInvalidStatus, Message: "invalid integration status"}
	ErrInvalidConfig       = &IntegrationError{Code: ErrorCodeInvalidConfig, Message: "invalid integration config"}
	ErrInvalidOptions      = &IntegrationError{Code: ErrorCodeInvalidOptions, Message: "invalid options"}
	ErrNoAdaptersAvailable = &IntegrationError{Code: ErrorCodeNoAdapters, Message: "no adapters available"}
	ErrSuspended           = &IntegrationError{Code: ErrorCodeSuspended, Message: "Integration suspended"}
)

func NewIntegrationError(integrationType string, code IntegrationErrorCode, message string, cause error) *IntegrationError {
	return &IntegrationError{
		IntegrationType: strings.TrimSpace(integrationType),
		Code:            code,
		Message:         strings.TrimSpace(message),
		Cause:           cause,
	}
}

func (e *IntegrationError) Error() string {
	if e == nil {
		return ""
	}
	message := e.Message
	if message == "" {
		message = string(e.Code)
	}
	if e.Cause != nil {
		return message + ": " + e.Cause.Error()
	}
	return message
}

func (e *IntegrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on code so errors.Is(err, ErrNotConfigured) works for any
// integration type.
func (e *IntegrationError) Is(target error) bool {
	if e == nil {
		return false
	}
	other, ok := target.(*IntegrationError)
	if !ok || other == nil {
		return false
	}
	if other.Code != e.Code {
		return false
	}
	return other.IntegrationType == "" || other.IntegrationType == e.IntegrationType
}

type ProviderErrorCode string

const (
	ProviderErrorUnavailable       ProviderErrorCode = "PROVIDER_UNAVAILABLE"
	ProviderErrorRateLimited       ProviderErrorCode = "RATE_LIMITED"
	ProviderErrorTimeout           ProviderErrorCode = "PROVIDER_TIMEOUT"
	ProviderErrorInvalidNumber     ProviderErrorCode = "INVALID_NUMBER"
	ProviderErrorInsufficientFunds ProviderErrorCode = "INSUFFICIENT_FUNDS"
	ProviderErrorFailed            ProviderErrorCode = "PROVIDER_ERROR"
)

// ProviderError is the failure kind for provider operations.
type ProviderError struct {
	Code       ProviderErrorCode
	Provider   string
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	// Value holds the offending input for permanent input errors.
	Value string
	Cause error
}

func NewProviderError(provider string, code ProviderErrorCode, message string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Provider:  strings.TrimSpace(provider),
		Message:   strings.TrimSpace(message),
		Retryable: retryable,
	}
}

func NewProviderUnavailableError(provider string) *ProviderError {
	provider = strings.TrimSpace(provider)
	return NewProviderError(provider, ProviderErrorUnavailable, fmt.Sprintf("Provider %s is unavailable", provider), true)
}

func NewRateLimitError(provider string, retryAfter time.Duration) *ProviderError {
	provider = strings.TrimSpace(provider)
	err := NewProviderError(provider, ProviderErrorRateLimited, fmt.Sprintf("Rate limited by %s", provider), true)
	if retryAfter > 0 {
		err.RetryAfter = retryAfter
	}
	return err
}

func NewProviderTimeoutError(provider string) *ProviderError {
	provider = strings.TrimSpace(provider)
	return NewProviderError(provider, ProviderErrorTimeout, fmt.Sprintf("Provider %s timed out", provider), true)
}

func NewInvalidNumberError(provider string, value string) *ProviderError {
	err := NewProviderError(provider, ProviderErrorInvalidNumber, fmt.Sprintf("Invalid phone number: %s", value), false)
	err.Value = value
	return err
}

func NewInsufficientFundsError(provider string) *ProviderError {
	provider = strings.TrimSpace(provider)
	return NewProviderError(provider, ProviderErrorInsufficientFunds, fmt.Sprintf("Insufficient funds in %s account", provider), false)
}

// WithCause attaches the transport level error that produced e.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	if e == nil {
		return nil
	}
	e.Cause = cause
	return e
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Code)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Condition returns the failover condition tag for the error code.
func (e *ProviderError) Condition() (FailoverCondition, bool) {
	if e == nil {
		return "", false
	}
	switch e.Code {
	case ProviderErrorUnavailable:
		return FailoverServiceUnavailable, true
	case ProviderErrorRateLimited:
		return FailoverRateLimit, true
	case ProviderErrorTimeout:
		return FailoverTimeout, true
	default:
		return "", false
	}
}

// RetryAfterSeconds reports the provider hint in whole seconds.
func (e *ProviderError) RetryAfterSeconds() int64 {
	if e == nil || e.RetryAfter <= 0 {
		return 0
	}
	return int64(e.RetryAfter / time.Second)
}

// FailoverConditionOf finds the condition tag of the first ProviderError in
// the chain.
func FailoverConditionOf(err error) (FailoverCondition, bool) {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return "", false
	}
	return providerErr.Condition()
}

// ShouldFailover reports whether err is a provider error whose condition
// appears in allowed. Every other error returns false.
func ShouldFailover(err error, allowed []FailoverCondition) bool {
	if err == nil || len(allowed) == 0 {
		return false
	}
	var integrationErr *IntegrationError
	if errors.As(err, &integrationErr) {
		return false
	}
	condition, ok := FailoverConditionOf(err)
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == condition {
			return true
		}
	}
	return false
}

// IsRetryable classifies err for the retry engine. Integration errors and
// permanent provider errors are final; unknown errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var integrationErr *IntegrationError
	if errors.As(err, &integrationErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}
	return true
}

// IsErrorCode reports whether err carries the given integration error code.
func IsErrorCode(err error, code IntegrationErrorCode) bool {
	var integrationErr *IntegrationError
	if !errors.As(err, &integrationErr) {
		return false
	}
	return integrationErr.Code == code
}

// ErrorCode returns the taxonomy code of err, or "" for unknown errors.
func ErrorCode(err error) string {
	var integrationErr *IntegrationError
	if errors.As(err, &integrationErr) {
		return string(integrationErr.Code)
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return string(providerErr.Code)
	}
	return ""
}
