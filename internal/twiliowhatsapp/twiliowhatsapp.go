// Package twiliowhatsapp connects the dialogue engine to WhatsApp through the Twilio API.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrInvalidRecipient is returned for a recipient without enough digits.
var ErrInvalidRecipient = errors.New("invalid recipient")

var nonDigits = regexp.MustCompile(`\D`)

// Sender delivers a text message to a WhatsApp number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// messageCreator is the part of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number in "whatsapp:+1234567890" format.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// ConfigFromEnv fills unset options from TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and
// TWILIO_FROM_NUMBER.
func ConfigFromEnv(opts ...Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	return cfg
}

// Configured reports whether the credentials needed to send are present.
func (o Opts) Configured() bool {
	return o.AccountSID != "" && o.AuthToken != "" && o.FromWhats != ""
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	api       messageCreator
	fromWhats string
}

// NewClient creates a client. Options not given are read from the environment.
func NewClient(opts ...Option) (*Client, error) {
	cfg := ConfigFromEnv(opts...)
	slog.Debug("twiliowhatsapp.NewClient: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)
	return &Client{api: client.Api, fromWhats: cfg.FromWhats}, nil
}

// CanonicalizeRecipient strips everything but digits from a WhatsApp address and requires at
// least 6 digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	canonical := nonDigits.ReplaceAllString(recipient, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	return canonical, nil
}

// SendMessage sends a WhatsApp message. to may be a bare number or a "whatsapp:+..." address.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("Client.SendMessage: invalid recipient", "to", to, "error", err)
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	if _, err := c.api.CreateMessage(params); err != nil {
		slog.Error("Client.SendMessage: send failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}

	slog.Debug("Client.SendMessage: message sent", "to", canonical)
	return nil
}
