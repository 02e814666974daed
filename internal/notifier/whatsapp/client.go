// Package whatsapp sends messages through the WhatsApp Business Cloud API.
package whatsapp

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

const defaultBaseURL = "https://graph.facebook.com/v18.0"

type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	client        *http.Client
}

func NewClient(token, phoneNumberID string) *Client {
	return &Client{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       defaultBaseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(token, phoneNumberID, baseURL string) *Client {
	c := NewClient(token, phoneNumberID)
	c.baseURL = baseURL
	return c
}

type textPayload struct {
	Body string `json:"body"`
}

type sendMessageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textPayload `json:"text"`
}

// Send posts a text message to the recipient's phone number. The number
// comes from metadata when present, otherwise the opaque recipient
// reference is used as-is.
func (c *Client) Send(ctx context.Context, recipient string, content string, metadata model.JSONMap) error {
	to := recipient
	if v, ok := metadata["phone_number"].(string); ok && v != "" {
		to = v
	}

	reqBody := sendMessageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textPayload{Body: content},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return notifier.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return notifier.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return notifier.Transient(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return notifier.Transient(fmt.Errorf("whatsapp API error: %s", resp.Status))
	default:
		return notifier.Permanent(fmt.Errorf("whatsapp API error: %s", resp.Status))
	}
}
