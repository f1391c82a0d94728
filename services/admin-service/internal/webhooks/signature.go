// Package webhooks signs and inspects inbound webhook deliveries.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventTypeHeader = "X-Event-Type"
	signaturePrefix = "sha256="
)

// Sign returns the X-Webhook-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries a valid signature of body.
// An empty secret disables verification.
func Verify(secret, header string, body []byte) bool {
	if secret == "" {
		return true
	}
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// EventType prefers the X-Event-Type header and falls back to a top-level
// JSON "type" (or "event") field.
func EventType(h http.Header, body []byte) string {
	if v := strings.TrimSpace(h.Get(EventTypeHeader)); v != "" {
		return truncate(Text([]byte(v)), 128)
	}
	var doc struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	}
	if json.Unmarshal(body, &doc) == nil {
		if doc.Type != "" {
			return truncate(Text([]byte(doc.Type)), 128)
		}
		return truncate(Text([]byte(doc.Event)), 128)
	}
	return ""
}

var droppedHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

// FilterHeaders flattens h for storage, dropping credentials.
func FilterHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		ck := http.CanonicalHeaderKey(k)
		if droppedHeaders[ck] || len(v) == 0 {
			continue
		}
		out[ck] = truncate(Text([]byte(strings.Join(v, ", "))), 512)
	}
	return out
}

// Text makes b storable in a Postgres text or jsonb column: invalid UTF-8
// becomes U+FFFD and NUL bytes are dropped.
func Text(b []byte) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
