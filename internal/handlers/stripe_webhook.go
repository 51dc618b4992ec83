package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/labdeskapp/labdesk/internal/cache"
	"github.com/labdeskapp/labdesk/internal/observability"
	"github.com/labdeskapp/labdesk/internal/payments"
	"github.com/labdeskapp/labdesk/internal/services"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := payments.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		logger.Error("failed to read Stripe webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	cacheKey := cache.WebhookKey("stripe", event.ID)
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	processErr := h.handleStripeEvent(r, event)
	if processErr == nil {
		if err := h.cacheProvider.Set(ctx, cacheKey, "processed", stripeWebhookIdempotencyTTL); err != nil {
			logger.Error("failed to mark webhook as processed in cache", "error", err)
		}
	}
	if processErr != nil {
		logger.Error("failed to process Stripe webhook", "error", processErr, "type", event.Type)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) handleStripeEvent(r *http.Request, event *stripeapi.Event) error {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.received", 1, sentry.WithAttributes(attribute.String("webhook.event_type", string(event.Type))))

	if event.Data == nil {
		return errors.New("missing stripe event data")
	}

	switch event.Type {
	case "checkout.session.completed":
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
			return err
		}

		order, err := h.checkout.ConfirmPaid(ctx, payload.ID)
		if err != nil {
			// A session we never issued. Retrying will not help.
			if errors.Is(err, services.ErrNotFound) {
				logger.Warn("checkout session not found for completed event", "session_id", payload.ID)
				return nil
			}
			meter.Count("webhook.failed", 1, sentry.WithAttributes(attribute.String("reason", "confirm_paid_failed")))
			return err
		}

		meter.Count("webhook.processed", 1)
		logger.Info("order payment confirmed", "order_number", order.OrderNumber)
		return nil
	default:
		logger.Debug("ignoring Stripe event", "type", event.Type)
		return nil
	}
}
