package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput            = "INTEGRATION_BAD_INPUT"
	ServiceErrorNotConfigured       = "INTEGRATION_NOT_CONFIGURED"
	ServiceErrorInvalidStatus       = "INTEGRATION_INVALID_STATUS"
	ServiceErrorInvalidConfig       = "INTEGRATION_INVALID_CONFIG"
	ServiceErrorInvalidOptions      = "INTEGRATION_INVALID_OPTIONS"
	ServiceErrorNoAdapters          = "INTEGRATION_NO_ADAPTERS"
	ServiceErrorSuspended           = "INTEGRATION_SUSPENDED"
	ServiceErrorKindNotFound        = "INTEGRATION_KIND_NOT_FOUND"
	ServiceErrorProviderUnavailable = "INTEGRATION_PROVIDER_UNAVAILABLE"
	ServiceErrorRateLimited         = "INTEGRATION_RATE_LIMITED"
	ServiceErrorProviderTimeout     = "INTEGRATION_PROVIDER_TIMEOUT"
	ServiceErrorInvalidNumber       = "INTEGRATION_INVALID_NUMBER"
	ServiceErrorInsufficientFunds   = "INTEGRATION_INSUFFICIENT_FUNDS"
	ServiceErrorProviderFailed      = "INTEGRATION_PROVIDER_ERROR"
	ServiceErrorInternal            = "INTEGRATION_INTERNAL_ERROR"
)

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

// ToServiceError converts the integration error into a go-errors envelope.
func (e *IntegrationError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category, status, textCode := integrationErrorEnvelope(e.Code)
	metadata := map[string]any{"code": string(e.Code)}
	if e.IntegrationType != "" {
		metadata["integration_type"] = e.IntegrationType
	}
	var rich *goerrors.Error
	if e.Cause != nil {
		rich = goerrors.Wrap(e.Cause, category, e.Error())
	} else {
		rich = goerrors.New(e.Error(), category)
	}
	return rich.
		WithCode(status).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func integrationErrorEnvelope(code IntegrationErrorCode) (goerrors.Category, int, string) {
	switch code {
	case ErrorCodeNotConfigured:
		return goerrors.CategoryConflict, http.StatusConflict, ServiceErrorNotConfigured
	case ErrorCodeInvalidStatus:
		return goerrors.CategoryBadInput, http.StatusBadRequest, ServiceErrorInvalidStatus
	case ErrorCodeInvalidConfig:
		return goerrors.CategoryValidation, http.StatusBadRequest, ServiceErrorInvalidConfig
	case ErrorCodeInvalidOptions:
		return goerrors.CategoryBadInput, http.StatusBadRequest, ServiceErrorInvalidOptions
	case ErrorCodeNoAdapters:
		return goerrors.CategoryOperation, http.StatusServiceUnavailable, ServiceErrorNoAdapters
	case ErrorCodeSuspended:
		return goerrors.CategoryOperation, http.StatusForbidden, ServiceErrorSuspended
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError, ServiceErrorInternal
	}
}

// ToServiceError converts the provider error into a go-errors envelope.
func (e *ProviderError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category, status, textCode := providerErrorEnvelope(e.Code)
	metadata := map[string]any{
		"code":      string(e.Code),
		"provider":  e.Provider,
		"retryable": e.Retryable,
	}
	if condition, ok := e.Condition(); ok {
		metadata["failover_condition"] = string(condition)
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	if e.Value != "" {
		metadata["value"] = e.Value
	}
	var rich *goerrors.Error
	if e.Cause != nil {
		rich = goerrors.Wrap(e.Cause, category, e.Error())
	} else {
		rich = goerrors.New(e.Error(), category)
	}
	return rich.
		WithCode(status).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func providerErrorEnvelope(code ProviderErrorCode) (goerrors.Category, int, string) {
	switch code {
	case ProviderErrorUnavailable:
		return goerrors.CategoryExternal, http.StatusServiceUnavailable, ServiceErrorProviderUnavailable
	case ProviderErrorRateLimited:
		return goerrors.CategoryRateLimit, http.StatusTooManyRequests, ServiceErrorRateLimited
	case ProviderErrorTimeout:
		return goerrors.CategoryExternal, http.StatusGatewayTimeout, ServiceErrorProviderTimeout
	case ProviderErrorInvalidNumber:
		return goerrors.CategoryValidation, http.StatusUnprocessableEntity, ServiceErrorInvalidNumber
	case ProviderErrorInsufficientFunds:
		return goerrors.CategoryOperation, http.StatusPaymentRequired, ServiceErrorInsufficientFunds
	default:
		return goerrors.CategoryExternal, http.StatusBadGateway, ServiceErrorProviderFailed
	}
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		if mapped := converter.ToServiceError(); mapped != nil {
			return ensureServiceErrorEnvelope(mapped)
		}
	}

	if errors.Is(err, ErrKindNotFound) {
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorKindNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

// MapServiceError is the default ErrorMapper.
func MapServiceError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorKindNotFound
	case goerrors.CategoryConflict:
		return ServiceErrorNotConfigured
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorProviderFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
