package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httpretry"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Client talks to the provider's JSON transactional-email endpoint.
// Success is any 2xx; anything else (including network errors) surfaces as
// an error for the caller to retry.
type Client struct {
	httpClient httpretry.HTTPDoer
	baseURL    string
	authToken  string
	from       string
}

// sendEmailRequest is the provider wire format.
type sendEmailRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// NewClient creates a provider client. If httpClient is nil a default
// client with the given timeout is used. Pass an httpretry.RetryClient for
// one-shot sends that have no queue behind them.
func NewClient(httpClient httpretry.HTTPDoer, baseURL, authToken, from string, timeout time.Duration) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		authToken:  authToken,
		from:       from,
	}
}

// Send posts one email to the provider.
func (c *Client) Send(ctx context.Context, to domain.SubscriberEmail, subject, htmlBody, textBody string) error {
	payload := sendEmailRequest{
		From:     c.from,
		To:       to.String(),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Server-Token", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The body usually carries the provider's error message; cap it so a
		// misbehaving provider cannot blow up the error_message column.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	io.Copy(io.Discard, resp.Body)
	logger.Debug("email accepted by provider", "to", to.String(), "subject", subject)
	return nil
}
