package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// Classifier maps transport failures and HTTP responses onto the provider
// error taxonomy so retry and failover can act on them.
type Classifier struct {
	Provider string
	// InvalidNumberCodes are provider error codes that mean the destination
	// number was rejected.
	InvalidNumberCodes []string
	// InsufficientFundsCodes are provider error codes that mean the account
	// cannot pay for the operation. HTTP 402 always maps here.
	InsufficientFundsCodes []string
	Now                    func() time.Time
}

// Classify returns nil for 2xx responses. value is the caller input that an
// INVALID_NUMBER error should carry.
func (c Classifier) Classify(ctx context.Context, res Response, err error, value string) error {
	provider := strings.TrimSpace(c.Provider)
	if err != nil {
		if isTimeout(ctx, err) {
			return core.NewProviderTimeoutError(provider).WithCause(err)
		}
		return core.NewProviderUnavailableError(provider).WithCause(err)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	code, message := providerErrorDetails(res.Body)
	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return core.NewRateLimitError(provider, c.retryAfter(res.Header("Retry-After")))
	case res.StatusCode == http.StatusServiceUnavailable, res.StatusCode == http.StatusBadGateway:
		return core.NewProviderUnavailableError(provider)
	case res.StatusCode == http.StatusGatewayTimeout, res.StatusCode == http.StatusRequestTimeout:
		return core.NewProviderTimeoutError(provider)
	case res.StatusCode == http.StatusPaymentRequired, matchesCode(code, c.InsufficientFundsCodes):
		return core.NewInsufficientFundsError(provider)
	case matchesCode(code, c.InvalidNumberCodes):
		return core.NewInvalidNumberError(provider, value)
	}

	if message == "" {
		message = fmt.Sprintf("%s request failed with status %d", provider, res.StatusCode)
	}
	failed := core.NewProviderError(provider, core.ProviderErrorFailed, message, res.StatusCode >= 500)
	if code != "" {
		failed.Value = code
	}
	return failed
}

func (c Classifier) retryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	at, err := http.ParseTime(header)
	if err != nil {
		return 0
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	if wait := at.Sub(now); wait > 0 {
		return wait.Truncate(time.Second)
	}
	return 0
}

// providerErrorDetails reads {"code":..,"message":..} or
// {"error":{"code":..,"decline_code":..,"message":..}} bodies.
func providerErrorDetails(body []byte) (string, string) {
	if len(body) == 0 {
		return "", ""
	}
	var payload struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Error   *struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	if payload.Error != nil {
		code := payload.Error.DeclineCode
		if code == "" {
			code = payload.Error.Code
		}
		return strings.TrimSpace(code), strings.TrimSpace(payload.Error.Message)
	}
	return strings.Trim(strings.TrimSpace(string(payload.Code)), `"`), strings.TrimSpace(payload.Message)
}

func matchesCode(code string, candidates []string) bool {
	if code == "" {
		return false
	}
	return slices.ContainsFunc(candidates, func(candidate string) bool {
		return strings.EqualFold(strings.TrimSpace(candidate), code)
	})
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "deadline exceeded")
}
