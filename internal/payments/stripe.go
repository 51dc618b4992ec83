// Package payments provides Stripe checkout functionality for prepaid orders.
package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// Client wraps the Stripe API for prepaid order checkout.
type Client struct {
	client *stripe.Client
}

func NewClient(secretKey string) *Client {
	return &Client{client: stripe.NewClient(secretKey)}
}

// CheckoutItem is one line of a checkout session.
type CheckoutItem struct {
	Name           string
	Quantity       int64
	UnitPriceCents int64
}

// CheckoutSessionParams holds parameters for creating a checkout session
type CheckoutSessionParams struct {
	OrderID       uuid.UUID
	OrderNumber   string
	Items         []CheckoutItem
	DiscountCents int64
	PatientEmail  string
	SuccessURL    string
	CancelURL     string
}

// CreateCheckoutSession creates a checkout session for a prepaid order.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if len(params.Items) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}

	lineItems := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(params.Items))
	for _, item := range params.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String("usd"),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitPriceCents),
			},
			Quantity: stripe.Int64(quantity),
		})
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		LineItems:          lineItems,
		CustomerEmail:      stripe.String(params.PatientEmail),
		Metadata: map[string]string{
			"order_id":     params.OrderID.String(),
			"order_number": params.OrderNumber,
		},
	}

	if params.PatientEmail == "" {
		sessionParams.CustomerEmail = nil
	}

	sess, err := c.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess, nil
}

// CreateOrderCheckout creates a session and returns its ID and hosted URL.
func (c *Client) CreateOrderCheckout(ctx context.Context, params CheckoutSessionParams) (string, string, error) {
	sess, err := c.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", "", err
	}
	return sess.ID, sess.URL, nil
}
