// Package sms sends text messages through a configurable provider.
package sms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNotConfigured = errors.New("sms provider not configured")

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

type Config struct {
	Provider string `env:"SMS_PROVIDER" envDefault:"noop"`
	URL      string `env:"SMS_WEBHOOK_URL"`
	Token    string `env:"SMS_WEBHOOK_TOKEN"`
	From     string `env:"SMS_FROM"`
}

// New picks the sender named by cfg.Provider.
func New(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "noop":
		return NewNoopSender(), nil
	case "webhook":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, ErrNotConfigured
		}
		return NewWebhookSender(cfg.URL, cfg.Token, cfg.From), nil
	}
	return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
}

// WebhookSender posts {to, body, from} to a gateway that relays the SMS.
type WebhookSender struct {
	url    string
	token  string
	from   string
	client *resty.Client
}

func NewWebhookSender(url, token, from string) *WebhookSender {
	hc := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &WebhookSender{
		url:    strings.TrimSpace(url),
		token:  strings.TrimSpace(token),
		from:   strings.TrimSpace(from),
		client: resty.NewWithClient(hc).SetTimeout(5 * time.Second),
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, to string, body string) error {
	if s.url == "" {
		return ErrNotConfigured
	}
	payload := map[string]string{"to": to, "body": body}
	if s.from != "" {
		payload["from"] = s.from
	}
	req := s.client.R().SetContext(ctx).SetBody(payload)
	if s.token != "" {
		req.SetAuthToken(s.token)
	}
	resp, err := req.Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode())
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(_ context.Context, _ string, _ string) error {
	return nil
}
