// Package phone normalizes caller-supplied phone numbers into the
// "+<country code><digits>" form carriers expect.
package phone

import (
	"regexp"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const DefaultCountryCode = "1"

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Normalize keeps digits and a leading plus sign. Numbers that already carry
// a plus are returned as-is; anything else gets "+<countryCode>" prepended.
// The result is not validated.
func Normalize(raw string, defaultCountryCode string) string {
	countryCode := strings.TrimSpace(defaultCountryCode)
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	var builder strings.Builder
	builder.Grow(len(raw) + len(countryCode) + 1)
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '+' && builder.Len() == 0:
			builder.WriteRune(r)
		}
	}
	cleaned := builder.String()
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	return "+" + countryCode + cleaned
}

// IsValidE164 reports whether value is a plus sign, a non-zero leading digit
// and at most 15 digits in total.
func IsValidE164(value string) bool {
	return e164Pattern.MatchString(value)
}

// NormalizeE164 normalizes raw and rejects values that are not E.164 with an
// INVALID_NUMBER provider error attributed to provider.
func NormalizeE164(provider string, raw string, defaultCountryCode string) (string, error) {
	normalized := Normalize(raw, defaultCountryCode)
	if !IsValidE164(normalized) {
		return "", core.NewInvalidNumberError(provider, raw)
	}
	return normalized, nil
}
