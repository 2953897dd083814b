package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/phone"
	"github.com/goliatone/go-integrations/transport"
)

const OperationSendMessage = "send_message"

type Message struct {
	To   string
	From string
	Body string
	// StatusCallback overrides the callback URL for this message.
	StatusCallback string
}

type MessageReceipt struct {
	SID      string `json:"sid"`
	Status   string `json:"status"`
	To       string `json:"to"`
	Provider string `json:"-"`
}

// MessageSender is the messaging capability trait.
type MessageSender interface {
	core.ProviderAdapter
	SendMessage(ctx context.Context, msg Message) (MessageReceipt, error)
}

type Client struct {
	name        string
	accountSID  string
	authToken   string
	from        string
	countryCode string
	rest        *transport.RESTClient
	classifier  transport.Classifier
}

type ClientOption func(*Client)

func WithHTTPClient(doer transport.HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.rest.Client = doer
		}
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.rest.BaseURL = trimmed
		}
	}
}

func WithName(name string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.name = trimmed
			c.classifier.Provider = trimmed
		}
	}
}

// WithFrom sets the default sender number.
func WithFrom(from string) ClientOption {
	return func(c *Client) {
		c.from = strings.TrimSpace(from)
	}
}

// WithDefaultCountryCode sets the calling code used for numbers without a
// leading "+".
func WithDefaultCountryCode(code string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(code); trimmed != "" {
			c.countryCode = trimmed
		}
	}
}

func NewClient(accountSID string, authToken string, opts ...ClientOption) (*Client, error) {
	accountSID = strings.TrimSpace(accountSID)
	authToken = strings.TrimSpace(authToken)
	if accountSID == "" || authToken == "" {
		return nil, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "account_sid and auth_token are required", nil)
	}
	client := &Client{
		name:        IntegrationType,
		accountSID:  accountSID,
		authToken:   authToken,
		countryCode: phone.DefaultCountryCode,
		rest:        transport.NewRESTClient(nil, BaseURL),
		classifier: transport.Classifier{
			Provider:           IntegrationType,
			InvalidNumberCodes: []string{"21211", "21614"},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewClientFromCredentials builds a client from the credentials stored for
// an integration, typically a *core.Controller.
func NewClientFromCredentials(ctx context.Context, credentials core.CredentialSource, opts ...ClientOption) (*Client, error) {
	accountSID, authToken, err := loadCredentials(ctx, credentials)
	if err != nil {
		return nil, err
	}
	return NewClient(accountSID, authToken, opts...)
}

func (c *Client) Provider() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Client) SendMessage(ctx context.Context, msg Message) (MessageReceipt, error) {
	if c == nil {
		return MessageReceipt{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, core.ErrNotConfigured.Message, nil)
	}
	to, err := phone.NormalizeE164(c.name, msg.To, c.countryCode)
	if err != nil {
		return MessageReceipt{}, err
	}
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = c.from
	}
	if from == "" {
		return MessageReceipt{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidOptions, "sender number is required", nil)
	}
	if strings.TrimSpace(msg.Body) == "" {
		return MessageReceipt{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidOptions, "message body is required", nil)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", msg.Body)
	if callback := strings.TrimSpace(msg.StatusCallback); callback != "" {
		form.Set("StatusCallback", callback)
	}

	res, err := c.rest.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("/%s/Accounts/%s/Messages.json", APIVersion, url.PathEscape(c.accountSID)),
		Headers: map[string]string{
			"Authorization": basicAuth(c.accountSID, c.authToken),
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if classified := c.classifier.Classify(ctx, res, err, to); classified != nil {
		return MessageReceipt{}, classified
	}

	var receipt MessageReceipt
	if err := json.Unmarshal(res.Body, &receipt); err != nil {
		return MessageReceipt{}, core.NewProviderError(c.name, core.ProviderErrorFailed, "decode message response", false).WithCause(err)
	}
	receipt.Provider = c.name
	return receipt, nil
}

// SendMessage delivers msg through the controller's resilience policy across
// senders in order.
func SendMessage(ctx context.Context, controller *core.Controller, senders []MessageSender, msg Message) (MessageReceipt, error) {
	return core.Invoke(ctx, controller, OperationSendMessage, senders, func(ctx context.Context, sender MessageSender) (MessageReceipt, error) {
		return sender.SendMessage(ctx, msg)
	})
}

var _ MessageSender = (*Client)(nil)
