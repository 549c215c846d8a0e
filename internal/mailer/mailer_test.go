package mailer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{"stub default", config.Config{EmailProvider: "stub"}, "stub", false},
		{"smtp", config.Config{EmailProvider: "smtp", SMTPHost: "mail.example.com", SMTPPort: "587"}, "smtp", false},
		{"smtp missing host", config.Config{EmailProvider: "smtp"}, "", true},
		{"gmail", config.Config{EmailProvider: "gmail", SMTPUser: "me@gmail.com"}, "gmail", false},
		{"resend", config.Config{EmailProvider: "resend", ResendAPIKey: "re_123"}, "resend", false},
		{"brevo", config.Config{EmailProvider: "brevo", BrevoAPIKey: "xkeysib-123"}, "brevo", false},
		{"unknown", config.Config{EmailProvider: "pigeon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(&tt.cfg, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestHTTPProviderSend(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newResendProvider("re_test", "Dearly <no-reply@dearly.app>")
	p.endpoint = srv.URL

	err := p.Send(context.Background(), Message{
		To:      "amy@example.com",
		Subject: "A letter for you",
		HTML:    "<p>hello</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer re_test", gotAuth)
	assert.Equal(t, "A letter for you", gotBody["subject"])
	assert.Equal(t, []interface{}{"amy@example.com"}, gotBody["to"])
}

func TestBrevoSenderSplitsDisplayName(t *testing.T) {
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := newBrevoProvider("xkeysib-test", "Dearly <no-reply@dearly.app>")
	p.endpoint = srv.URL

	err := p.Send(context.Background(), Message{To: "amy@example.com", Subject: "hi"})
	require.NoError(t, err)

	// Brevo rejects display-name strings in sender.email
	sender, ok := gotBody["sender"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "no-reply@dearly.app", sender["email"])
	assert.Equal(t, "Dearly", sender["name"])
}

func TestBrevoBareSenderHasNoName(t *testing.T) {
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := newBrevoProvider("xkeysib-test", "no-reply@dearly.app")
	p.endpoint = srv.URL

	err := p.Send(context.Background(), Message{To: "amy@example.com", Subject: "hi"})
	require.NoError(t, err)

	sender, ok := gotBody["sender"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "no-reply@dearly.app", sender["email"])
	_, hasName := sender["name"]
	assert.False(t, hasName)
}

func TestHTTPProviderSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newBrevoProvider("bad-key", "no-reply@dearly.app")
	p.endpoint = srv.URL
	p.httpClient = &http.Client{Timeout: time.Second}

	err := p.Send(context.Background(), Message{To: "amy@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestLetterShareEmailEscapesNames(t *testing.T) {
	msg := LetterShareEmail("amy@example.com", "<b>Amy</b>", "Ben", "https://dearly.app", "abc123")

	assert.Contains(t, msg.HTML, "&lt;b&gt;Amy&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "https://dearly.app/letters/shared/abc123")
	assert.Equal(t, "amy@example.com", msg.To)
}
