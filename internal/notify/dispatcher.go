package notify

import (
	"context"
	"log/slog"

	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/observability"
)

// Dispatcher fans a notification out to every channel that can reach
// the recipient. Transport failures are logged and swallowed; the only
// error a caller sees is ErrUnknownTemplate.
type Dispatcher struct {
	templates map[Event]Template
	channels  []Channel
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given template registry
// and channels. A nil registry means the built-in Templates().
func NewDispatcher(logger *slog.Logger, templates map[Event]Template, channels ...Channel) *Dispatcher {
	if templates == nil {
		templates = Templates()
	}
	return &Dispatcher{
		templates: templates,
		channels:  channels,
		logger:    logger,
	}
}

// Dispatch renders the template for event and attempts delivery on each
// channel that can reach the recipient. It returns true when at least
// one channel delivered the message.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, recipient Recipient, data map[string]string) (bool, error) {
	logger := logging.FromContext(ctx, d.logger)

	tpl, ok := d.templates[event]
	if !ok {
		return false, ErrUnknownTemplate
	}

	subject := Render(tpl.Subject, data)
	body := Render(tpl.Body, data)

	delivered := false
	for _, channel := range d.channels {
		if !channel.CanReach(recipient) {
			logger.DebugContext(ctx, "recipient has no contact for channel, skipping",
				slog.String("event", string(event)),
				slog.String("channel", channel.Name()),
			)
			continue
		}

		sent, err := channel.Send(ctx, recipient, subject, body)
		if err != nil {
			logger.ErrorContext(ctx, "notification send failed",
				slog.String("event", string(event)),
				slog.String("channel", channel.Name()),
				slog.Any("error", err),
			)
			observability.MeterFromContext(ctx).Count("notification.send.failed", 1)
			continue
		}
		if sent {
			delivered = true
			observability.MeterFromContext(ctx).Count("notification.send.delivered", 1)
		}
	}

	return delivered, nil
}
