package devkit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/goliatone/go-integrations/core"
)

// SignedWebhook is a payload with a precomputed signature header.
type SignedWebhook struct {
	Name    string
	Secret  string
	Payload core.WebhookPayload
}

// NewHexHMACWebhook signs body with HMAC-SHA256 and places the hex digest,
// behind prefix, in header.
func NewHexHMACWebhook(header string, prefix string, secret string, deliveryID string, body []byte) SignedWebhook {
	return SignedWebhook{
		Name:   "hex-hmac",
		Secret: secret,
		Payload: core.WebhookPayload{
			Body: append([]byte(nil), body...),
			Headers: map[string]string{
				header:          prefix + SignHexHMAC(secret, body),
				"X-Delivery-Id": deliveryID,
			},
		},
	}
}

// NewStripeStyleWebhook signs "<timestamp>.<body>" the way Stripe does and
// renders the t=,v1= header.
func NewStripeStyleWebhook(secret string, timestamp int64, eventID string, body []byte) SignedWebhook {
	signed := append([]byte(strconv.FormatInt(timestamp, 10)+"."), body...)
	return SignedWebhook{
		Name:   "stripe-signature",
		Secret: secret,
		Payload: core.WebhookPayload{
			Body: append([]byte(nil), body...),
			Headers: map[string]string{
				"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", timestamp, SignHexHMAC(secret, signed)),
				"Stripe-Event-Id":  eventID,
			},
		},
	}
}

func SignHexHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
