// Package email sends plain-text mail over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("smtp host not configured")

type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type Config struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT" envDefault:"1025"`
	From     string `env:"SMTP_FROM" envDefault:"no-reply@bookingadmin.local"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
}

// SMTPSender sends through a relay, with PLAIN auth when a username is set.
type SMTPSender struct {
	addr string
	host string
	from string
	auth smtp.Auth
}

func NewSMTPSender(cfg Config) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	s := &SMTPSender{
		addr: net.JoinHostPort(host, strings.TrimSpace(cfg.Port)),
		host: host,
		from: strings.TrimSpace(cfg.From),
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, to string, subject string, body string) error {
	if s.host == "" {
		return ErrNotConfigured
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(s.from, addr.Address, subject, body)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{addr.Address}, []byte(msg))
}

// buildMessage renders a minimal RFC 5322 message. Header values are
// stripped of line breaks.
func buildMessage(from, to, subject, body string) string {
	clean := strings.NewReplacer("\r", " ", "\n", " ")
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		clean.Replace(from),
		clean.Replace(to),
		clean.Replace(subject),
		strings.ReplaceAll(body, "\n", "\r\n"),
	)
}
