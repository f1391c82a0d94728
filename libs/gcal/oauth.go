// Package gcal wraps the Google OAuth2 authorization-code flow and the
// Calendar v3 REST endpoints the back-office needs.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const Scope = "https://www.googleapis.com/auth/calendar"

type Config struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
	AuthURL      string `env:"GOOGLE_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string `env:"GOOGLE_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	RevokeURL    string `env:"GOOGLE_REVOKE_URL" envDefault:"https://oauth2.googleapis.com/revoke"`
	APIBaseURL   string `env:"GOOGLE_CALENDAR_API" envDefault:"https://www.googleapis.com/calendar/v3"`
}

// NewHTTPClient returns the traced client shared by the OAuth and REST calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type OAuth struct {
	cfg       *oauth2.Config
	revokeURL string
	http      *http.Client
	r         *resty.Client
}

func NewOAuth(cfg Config, httpClient *http.Client) *OAuth {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		revokeURL: cfg.RevokeURL,
		http:      httpClient,
		r:         resty.NewWithClient(httpClient),
	}
}

// Enabled reports whether client credentials are configured.
func (o *OAuth) Enabled() bool {
	return o.cfg.ClientID != "" && o.cfg.ClientSecret != "" && o.cfg.RedirectURL != ""
}

// AuthCodeURL asks for offline access and forces the consent screen so a
// refresh token is always returned.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return o.cfg.Exchange(o.clientContext(ctx), code)
}

// Refresh returns a valid token, refreshing it when it is expired or about
// to expire. changed is true when the caller should persist the result.
func (o *OAuth) Refresh(ctx context.Context, tok *oauth2.Token) (fresh *oauth2.Token, changed bool, err error) {
	fresh, err = o.cfg.TokenSource(o.clientContext(ctx), tok).Token()
	if err != nil {
		return nil, false, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, fresh.AccessToken != tok.AccessToken, nil
}

// Revoke invalidates a token at Google. Callers treat failures as best effort.
func (o *OAuth) Revoke(ctx context.Context, token string) error {
	if token == "" || o.revokeURL == "" {
		return nil
	}
	resp, err := o.r.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token}).
		Post(o.revokeURL)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("revoke returned %d", resp.StatusCode())
	}
	return nil
}

func (o *OAuth) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.http)
}

// IsInvalidGrant reports whether Google rejected the refresh token, which
// means the user revoked access or the grant expired.
func IsInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode == "invalid_grant"
	}
	return false
}
