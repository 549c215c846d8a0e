package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"
)

// httpProvider delivers through a JSON-over-HTTP email API (Resend, Brevo).
// Each provider supplies its endpoint, auth headers and payload encoding.
type httpProvider struct {
	name       string
	endpoint   string
	headers    map[string]string
	encode     func(from string, msg Message) ([]byte, error)
	from       string
	httpClient *http.Client
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) Send(ctx context.Context, msg Message) error {
	payload, err := p.encode(p.from, msg)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", p.name, resp.StatusCode, string(body))
	}
	return nil
}

func newResendProvider(apiKey, from string) *httpProvider {
	return &httpProvider{
		name:     "resend",
		endpoint: "https://api.resend.com/emails",
		headers:  map[string]string{"Authorization": "Bearer " + apiKey},
		encode: func(from string, msg Message) ([]byte, error) {
			return json.Marshal(map[string]interface{}{
				"from":    from,
				"to":      []string{msg.To},
				"subject": msg.Subject,
				"html":    msg.HTML,
			})
		},
		from:       from,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func newBrevoProvider(apiKey, from string) *httpProvider {
	return &httpProvider{
		name:     "brevo",
		endpoint: "https://api.brevo.com/v3/smtp/email",
		headers:  map[string]string{"api-key": apiKey},
		encode: func(from string, msg Message) ([]byte, error) {
			// Brevo wants a bare address in sender.email; a display name
			// goes in sender.name.
			sender := map[string]string{"email": from}
			if addr, err := mail.ParseAddress(from); err == nil {
				sender["email"] = addr.Address
				if addr.Name != "" {
					sender["name"] = addr.Name
				}
			}
			return json.Marshal(map[string]interface{}{
				"sender":      sender,
				"to":          []map[string]string{{"email": msg.To}},
				"subject":     msg.Subject,
				"htmlContent": msg.HTML,
			})
		},
		from:       from,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}
