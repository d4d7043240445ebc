// Package line implements the outbound LINE Messaging API client.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"groupbuy-core/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client pushes messages through the LINE Messaging API. The retry key is
// forwarded as X-Line-Retry-Key so the provider deduplicates repeated pushes
// of the same notification event.
type Client struct {
	apiBase    string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a new Client.
func NewClient(cfg config.LineConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		apiBase:    cfg.APIBase,
		httpClient: httpClient,
		log:        log,
	}
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Push sends one text message to a LINE user.
func (c *Client) Push(ctx context.Context, channelToken, to string, payload []byte, retryKey uuid.UUID) error {
	body, err := json.Marshal(pushRequest{
		To:       to,
		Messages: []pushMessage{{Type: "text", Text: renderText(payload)}},
	})
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+channelToken)
	req.Header.Set("X-Line-Retry-Key", retryKey.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// 409 means the retry key was already accepted, which is success for us.
	if resp.StatusCode == http.StatusConflict {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.log.Warn().
		Int("status", resp.StatusCode).
		Str("retry_key", retryKey.String()).
		Msg("push rejected by provider")
	return fmt.Errorf("provider returned %d: %s", resp.StatusCode, respBody)
}

// renderText turns the stored notification payload into the message text. The
// payload is the JSON snapshot written at enqueue time.
func renderText(payload []byte) string {
	var fields struct {
		Trigger string `json:"trigger"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return string(payload)
	}
	switch fields.Trigger {
	case "order-created":
		return fmt.Sprintf("New order received: %s", fields.OrderID)
	case "status-changed":
		return fmt.Sprintf("Order %s is now %s", fields.OrderID, fields.Status)
	default:
		return string(payload)
	}
}
