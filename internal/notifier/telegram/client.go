// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/notifier"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts the message to the recipient's chat. The chat id comes from
// metadata when present (channel-specific addressing), otherwise the
// opaque recipient reference is used as-is.
func (c *Client) Send(ctx context.Context, recipient string, content string, metadata model.JSONMap) error {
	chatID := recipient
	if v, ok := metadata["chat_id"].(string); ok && v != "" {
		chatID = v
	}

	reqBody := sendMessageRequest{
		ChatID: chatID,
		Text:   content,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return notifier.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return notifier.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return notifier.Transient(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return notifier.Transient(fmt.Errorf("telegram API error: %s", resp.Status))
	default:
		return notifier.Permanent(fmt.Errorf("telegram API error: %s", resp.Status))
	}
}
