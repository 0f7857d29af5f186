// Package twiliowhatsapp wraps the Twilio REST client for sending WhatsApp
// messages through Twilio's WhatsApp Business API.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppPrefix is the address prefix Twilio expects on WhatsApp numbers.
const WhatsAppPrefix = "whatsapp:"

// Sender is an interface for sending messages through Twilio (for production and testing)
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMediaMessage(ctx context.Context, to string, mediaURL string, caption string) error
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string // WhatsApp-enabled sender number in E.164 format
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) {
		o.AccountSID = sid
	}
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) {
		o.AuthToken = token
	}
}

// WithFromNumber sets the WhatsApp-enabled sender number.
func WithFromNumber(number string) Option {
	return func(o *Opts) {
		o.FromNumber = number
	}
}

// Client wraps the Twilio REST client for WhatsApp messaging.
type Client struct {
	api  *twilio.RestClient
	from string
}

// NewClient creates a new Twilio WhatsApp client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio NewClient options set",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("twilio account SID is required")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio auth token is required")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}

	api := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Info("Twilio WhatsApp client initialized", "from", cfg.FromNumber)
	return &Client{api: api, from: cfg.FromNumber}, nil
}

// SendMessage sends a WhatsApp text message through Twilio.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(whatsAppAddress(to))
	params.SetFrom(whatsAppAddress(c.from))
	params.SetBody(body)

	slog.Debug("Sending Twilio WhatsApp message", "to", to, "body_length", len(body))
	resp, err := c.api.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Failed to send Twilio WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp.Sid != nil {
		slog.Debug("Twilio WhatsApp message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// SendMediaMessage sends a WhatsApp media message with an optional caption.
func (c *Client) SendMediaMessage(ctx context.Context, to string, mediaURL string, caption string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if mediaURL == "" {
		return fmt.Errorf("media URL cannot be empty")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(whatsAppAddress(to))
	params.SetFrom(whatsAppAddress(c.from))
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}

	slog.Debug("Sending Twilio WhatsApp media message", "to", to, "media_url", mediaURL)
	resp, err := c.api.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Failed to send Twilio WhatsApp media message", "error", err, "to", to)
		return fmt.Errorf("failed to send media message to %s: %w", to, err)
	}
	if resp.Sid != nil {
		slog.Debug("Twilio WhatsApp media message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// whatsAppAddress ensures the number carries the Twilio WhatsApp prefix and a
// leading plus sign.
func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, WhatsAppPrefix) {
		return number
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return WhatsAppPrefix + number
}

// MockClient implements Sender but records instead of sending (for tests).
type MockClient struct {
	Messages []MockMessage
	// FailMedia makes SendMediaMessage return an error, for fallback tests.
	FailMedia bool
}

// MockMessage is one recorded send.
type MockMessage struct {
	To       string
	Body     string
	MediaURL string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.Messages = append(m.Messages, MockMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendMediaMessage(ctx context.Context, to string, mediaURL string, caption string) error {
	if m.FailMedia {
		return fmt.Errorf("mock media send failure")
	}
	m.Messages = append(m.Messages, MockMessage{To: to, Body: caption, MediaURL: mediaURL})
	return nil
}
