package webhooks

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"type":"payment.succeeded"}`)
	sig := Sign("s3cret", body)

	assert.True(t, Verify("s3cret", sig, body))
	assert.False(t, Verify("other", sig, body))
	assert.False(t, Verify("s3cret", sig, []byte(`{}`)))
	assert.False(t, Verify("s3cret", "md5=abc", body))
	assert.False(t, Verify("s3cret", "sha256=zz", body))
	assert.True(t, Verify("", "", body))
}

func TestEventType(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, "payment.succeeded", EventType(h, []byte(`{"type":"payment.succeeded"}`)))
	assert.Equal(t, "ping", EventType(h, []byte(`{"event":"ping"}`)))
	assert.Equal(t, "", EventType(h, []byte(`not json`)))

	h.Set(EventTypeHeader, "sms.delivered")
	assert.Equal(t, "sms.delivered", EventType(h, []byte(`{"type":"x"}`)))
}

func TestFilterHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer x")
	h.Set("Cookie", "a=b")
	h.Add("X-Trace", "1")
	h.Add("X-Trace", "2")

	got := FilterHeaders(h)
	assert.Equal(t, map[string]string{"X-Trace": "1, 2"}, got)
}

func TestTextIsStorable(t *testing.T) {
	assert.Equal(t, "ok \uFFFD end", Text([]byte("ok \xff\xfe end")))
	assert.Equal(t, "ab", Text([]byte("a\x00b")))
	assert.Equal(t, "café", Text([]byte("café")))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "caf", truncate("café", 4))
	assert.Equal(t, "café", truncate("café", 5))
	assert.Equal(t, "", truncate("é", 1))

	h := http.Header{}
	h.Set(EventTypeHeader, strings.Repeat("a", 127)+"é")
	got := EventType(h, nil)
	assert.Equal(t, strings.Repeat("a", 127), got)
	assert.True(t, utf8.ValidString(got))
}
