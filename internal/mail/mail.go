// Package mail sends transactional email through a SendGrid-compatible
// HTTP API. Delivery failures are reported to the caller but are meant
// to be logged, not surfaced to users.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/havenmind/haven/internal/httpc"
)

// DefaultBaseURL is the hosted SendGrid endpoint.
const DefaultBaseURL = "https://api.sendgrid.com"

// ErrNoAPIKey indicates the mailer was constructed without credentials.
var ErrNoAPIKey = errors.New("mail: API key is required")

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Client talks to the mail API.
type Client struct {
	apiKey  string
	baseURL string
	from    string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a mail client sending from the given address.
func NewClient(apiKey, from string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		from:    from,
		http:    httpc.NewClient(10 * time.Second),
		logger:  slog.Default().With("component", "mail"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type personalization struct {
	To []address `json:"to"`
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

// Send delivers one plain-text message.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	payload := sendRequest{
		Personalizations: []personalization{{To: []address{{Email: to}}}},
		From:             address{Email: c.from},
		Subject:          subject,
		Content:          []content{{Type: "text/plain", Value: body}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mail: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v3/mail/send", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("mail: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail: send returned %d: %s", resp.StatusCode, detail)
	}

	c.logger.Debug("mail sent", "to", to, "subject", subject)
	return nil
}

// Disabled is a Sender that drops mail and logs it. Used when no mail
// API key is configured so registration still works in development.
type Disabled struct{}

// Send logs the would-be delivery and succeeds.
func (Disabled) Send(_ context.Context, to, subject, _ string) error {
	slog.Default().Info("mail disabled, dropping message", "to", to, "subject", subject)
	return nil
}
