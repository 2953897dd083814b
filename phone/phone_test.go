package phone

import (
	"testing"

	"github.com/goliatone/go-integrations/core"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw         string
		countryCode string
		want        string
	}{
		{"4155551234", "", "+14155551234"},
		{"(415) 555-1234", "1", "+14155551234"},
		{"+442079460958", "", "+442079460958"},
		{"+44 20 7946 0958", "1", "+442079460958"},
		{"020 7946 0958", "44", "+4402079460958"},
		{"415+555+1234", "", "+14155551234"},
		{"++33123456789", "", "+33123456789"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.raw, tc.countryCode); got != tc.want {
			t.Fatalf("expected Normalize(%q, %q) = %q, got %q", tc.raw, tc.countryCode, tc.want, got)
		}
	}
}

func TestNormalizeIsIdempotentOnCanonicalInput(t *testing.T) {
	for _, value := range []string{"+14155551234", "+442079460958"} {
		if got := Normalize(Normalize(value, ""), ""); got != value {
			t.Fatalf("expected canonical %q to be unchanged, got %q", value, got)
		}
	}
}

func TestIsValidE164(t *testing.T) {
	valid := []string{"+14155551234", "+442079460958", "+12", "+123456789012345"}
	for _, value := range valid {
		if !IsValidE164(value) {
			t.Fatalf("expected %q to be valid", value)
		}
	}
	invalid := []string{"4155551234", "+0123456789", "+1", "+1234567890123456", "+1 415", ""}
	for _, value := range invalid {
		if IsValidE164(value) {
			t.Fatalf("expected %q to be invalid", value)
		}
	}
}

func TestNormalizeE164(t *testing.T) {
	got, err := NormalizeE164("twilio", "415-555-1234", "")
	if err != nil || got != "+14155551234" {
		t.Fatalf("expected normalized number, got %q %v", got, err)
	}

	_, err = NormalizeE164("twilio", "+0000", "")
	if core.ErrorCode(err) != string(core.ProviderErrorInvalidNumber) {
		t.Fatalf("expected INVALID_NUMBER, got %v", err)
	}
	if core.IsRetryable(err) {
		t.Fatalf("expected invalid number to be permanent")
	}
}
