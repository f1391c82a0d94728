package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/export"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/webhooks"
)

func TestStatsFlagsFilter(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	sf, format, err := statsFlags{group: "day", format: "xlsx"}.filter(now)
	require.NoError(t, err)
	assert.Equal(t, export.FormatXLSX, format)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), sf.To)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), sf.From)
	assert.Equal(t, model.GroupDay, sf.Group)

	sf, _, err = statsFlags{from: "2024-01-01", to: "2024-01-31", group: "service"}.filter(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), sf.To)

	_, _, err = statsFlags{group: "month"}.filter(now)
	assert.Error(t, err)
	_, _, err = statsFlags{from: "2024-02-01", to: "2024-01-01", group: "day"}.filter(now)
	assert.Error(t, err)
	_, _, err = statsFlags{group: "day", format: "pdf"}.filter(now)
	assert.Error(t, err)
}

func TestSendWebhookSigns(t *testing.T) {
	var gotPath, gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get(webhooks.SignatureHeader)
		gotType = r.Header.Get(webhooks.EventTypeHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := webhookFlags{baseURL: srv.URL + "/", source: "twilio", eventType: "sms.delivered", secret: "s3cret"}
	body, err := f.payload(time.Now())
	require.NoError(t, err)

	resp, err := sendWebhook(resty.New(), f, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode())
	assert.Equal(t, "/api/v1/webhooks/twilio", gotPath)
	assert.Equal(t, "sms.delivered", gotType)
	assert.True(t, webhooks.Verify("s3cret", gotSig, gotBody))
	assert.Contains(t, string(gotBody), `"type":"sms.delivered"`)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "import", "export", "workers", "webhook", "health"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"import"})
	assert.Error(t, root.Execute())
}
