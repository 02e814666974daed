// Package email delivers messages over SMTP for recipients that opted
// out of chat platforms.
package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/notifier"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

type Client struct {
	dialer *gomail.Dialer
	config Config
}

func NewClient(cfg Config) *Client {
	return &Client{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		config: cfg,
	}
}

// Send mails the message body to the recipient address. The address
// comes from metadata when present, otherwise the opaque recipient
// reference is used as-is.
func (c *Client) Send(ctx context.Context, recipient string, content string, metadata model.JSONMap) error {
	to := recipient
	if v, ok := metadata["email"].(string); ok && v != "" {
		to = v
	}

	subject := c.config.Subject
	if v, ok := metadata["subject"].(string); ok && v != "" {
		subject = v
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	done := make(chan error, 1)
	go func() {
		done <- c.dialer.DialAndSend(m)
	}()

	// gomail has no context support; honor the caller's deadline here.
	select {
	case <-ctx.Done():
		return notifier.Transient(ctx.Err())
	case err := <-done:
		if err != nil {
			return notifier.Transient(fmt.Errorf("smtp send: %w", err))
		}
		return nil
	}
}
