package notify

import (
	"context"
	"log/slog"

	"github.com/labdeskapp/labdesk/internal/email"
	"github.com/labdeskapp/labdesk/internal/logging"
)

// Channel delivers a rendered message over one transport.
type Channel interface {
	// Name identifies the channel in logs ("email", "sms", "whatsapp").
	Name() string
	// CanReach reports whether the recipient has the contact this
	// channel needs.
	CanReach(recipient Recipient) bool
	// Send delivers the message. A false return without error means the
	// channel is not operational (stub transport).
	Send(ctx context.Context, recipient Recipient, subject, body string) (bool, error)
}

// EmailChannel delivers notifications through an email provider.
type EmailChannel struct {
	provider email.Provider
}

func NewEmailChannel(provider email.Provider) *EmailChannel {
	return &EmailChannel{provider: provider}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) CanReach(recipient Recipient) bool {
	return recipient.Email != ""
}

func (c *EmailChannel) Send(ctx context.Context, recipient Recipient, subject, body string) (bool, error) {
	if c.provider == nil {
		return false, nil
	}
	err := c.provider.SendEmail(ctx, &email.Email{
		To:      recipient.Email,
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// StubChannel logs the message instead of delivering it and reports
// success, standing in for transports that are not yet integrated.
type StubChannel struct {
	name    string
	byPhone bool
}

func NewSMSChannel() *StubChannel {
	return &StubChannel{name: "sms", byPhone: true}
}

func NewWhatsAppChannel() *StubChannel {
	return &StubChannel{name: "whatsapp", byPhone: true}
}

func (c *StubChannel) Name() string { return c.name }

func (c *StubChannel) CanReach(recipient Recipient) bool {
	if c.byPhone {
		return recipient.Phone != ""
	}
	return recipient.Email != ""
}

func (c *StubChannel) Send(ctx context.Context, recipient Recipient, subject, body string) (bool, error) {
	logger := logging.FromContext(ctx, nil)
	logger.DebugContext(ctx, "notification channel not integrated, reporting success without sending",
		slog.String("channel", c.name),
		slog.String("subject", subject),
	)
	return true, nil
}
