package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/labdeskapp/labdesk/internal/catalog"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/observability"
	"github.com/labdeskapp/labdesk/internal/payments"
)

type catalogReader interface {
	GetTestByCode(ctx context.Context, code string) (*models.LabTest, error)
	GetPackageByCode(ctx context.Context, code string) (*models.HealthPackage, error)
}

type orderCreator interface {
	Create(ctx context.Context, order *models.Order) error
	SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error
	GetByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error)
}

type patientUpserter interface {
	UpsertByEmail(ctx context.Context, patient *models.Patient) error
}

type orderPricer interface {
	Compute(items []catalog.LineItem) (catalog.Totals, error)
}

type checkoutSessionCreator interface {
	CreateOrderCheckout(ctx context.Context, params payments.CheckoutSessionParams) (sessionID, checkoutURL string, err error)
}

// ErrUnknownItem is returned when a checkout references a catalog code
// that does not exist or is inactive.
var ErrUnknownItem = errors.New("unknown or inactive catalog item")

// CheckoutService turns a storefront cart into a pending order. Prepaid
// orders get a Stripe checkout session; collect-on-visit orders confirm
// immediately.
type CheckoutService struct {
	catalog         catalogReader
	orders          orderCreator
	patients        patientUpserter
	pricer          orderPricer
	stripe          checkoutSessionCreator
	lifecycle       orderTransitioner
	validate        *validator.Validate
	baseURL         string
	paymentsEnabled bool
	logger          *slog.Logger
}

func NewCheckoutService(catalogStore catalogReader, orders orderCreator, patients patientUpserter, pricer orderPricer, stripeClient checkoutSessionCreator, lifecycle orderTransitioner, baseURL string, paymentsEnabled bool, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		catalog:         catalogStore,
		orders:          orders,
		patients:        patients,
		pricer:          pricer,
		stripe:          stripeClient,
		lifecycle:       lifecycle,
		validate:        validator.New(),
		baseURL:         baseURL,
		paymentsEnabled: paymentsEnabled,
		logger:          logger,
	}
}

type CheckoutItemInput struct {
	Code     string `json:"code" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=test package"`
	Quantity int    `json:"quantity" validate:"omitempty,min=1,max=10"`
}

type CheckoutInput struct {
	PatientName   string              `json:"patient_name" validate:"required,min=2,max=120"`
	PatientEmail  string              `json:"patient_email" validate:"required,email"`
	PatientPhone  string              `json:"patient_phone" validate:"omitempty,e164"`
	Address       models.Address      `json:"address"`
	Items         []CheckoutItemInput `json:"items" validate:"required,min=1,max=20,dive"`
	PaymentMethod string              `json:"payment_method" validate:"required,oneof=prepaid collect_on_visit"`
}

// CheckoutResult is the storefront response. CheckoutURL is set only
// for prepaid orders.
type CheckoutResult struct {
	Order       *models.Order `json:"order"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.checkout",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Checkout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)

	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid checkout input: %w", err)
	}

	method := models.PaymentMethod(input.PaymentMethod)
	if method == models.PaymentPrepaid && !s.paymentsEnabled {
		// No payment provider configured, collect at the visit instead.
		logger.InfoContext(ctx, "prepaid checkout without payment provider, collecting on visit")
		meter.Count("checkout.prepaid_fallback", 1)
		method = models.PaymentCollectOnVisit
	}

	lineItems, orderItems, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		meter.Count("checkout.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "unresolved_item"),
		))
		return nil, err
	}

	totals, err := s.pricer.Compute(lineItems)
	if err != nil {
		return nil, fmt.Errorf("failed to price order: %w", err)
	}

	patient := &models.Patient{
		Role:    models.RolePatient,
		Name:    input.PatientName,
		Email:   input.PatientEmail,
		Phone:   input.PatientPhone,
		Address: input.Address,
	}
	if err := s.patients.UpsertByEmail(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to save patient: %w", err)
	}

	order := &models.Order{
		ID:            uuid.New(),
		PatientID:     patient.ID,
		Items:         orderItems,
		TotalCents:    totals.TotalCents,
		DiscountCents: totals.DiscountCents,
		FinalCents:    totals.FinalCents,
		PaymentMethod: method,
		Status:        models.StatusPending,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	logger.InfoContext(ctx, "order created",
		slog.String("order_number", order.OrderNumber),
		slog.String("payment_method", string(order.PaymentMethod)),
		slog.Int("final_cents", order.FinalCents),
	)
	meter.Count("order.created", 1, sentry.WithAttributes(
		attribute.String("payment_method", string(order.PaymentMethod)),
	))

	if order.PaymentMethod == models.PaymentCollectOnVisit {
		// Nothing to pay up front, confirm right away.
		confirmed, err := s.lifecycle.Transition(ctx, order.ID, models.StatusConfirmed)
		if err != nil {
			return nil, fmt.Errorf("failed to confirm order: %w", err)
		}
		return &CheckoutResult{Order: confirmed}, nil
	}

	sessionID, checkoutURL, err := s.stripe.CreateOrderCheckout(ctx, payments.CheckoutSessionParams{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Items:         stripeItems(orderItems),
		DiscountCents: int64(totals.DiscountCents),
		PatientEmail:  patient.Email,
		SuccessURL:    fmt.Sprintf("%s/orders/%s?checkout=success", s.baseURL, order.OrderNumber),
		CancelURL:     fmt.Sprintf("%s/orders/%s?checkout=cancelled", s.baseURL, order.OrderNumber),
	})
	if err != nil {
		meter.Count("checkout.session.failed", 1)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if err := s.orders.SetStripeSession(ctx, order.ID, sessionID); err != nil {
		return nil, fmt.Errorf("failed to record checkout session: %w", err)
	}
	order.StripeCheckoutSessionID = sessionID
	meter.Count("checkout.session.created", 1)

	return &CheckoutResult{Order: order, CheckoutURL: checkoutURL}, nil
}

func (s *CheckoutService) resolveItems(ctx context.Context, inputs []CheckoutItemInput) ([]catalog.LineItem, []models.OrderItem, error) {
	lineItems := make([]catalog.LineItem, 0, len(inputs))
	orderItems := make([]models.OrderItem, 0, len(inputs))

	for _, input := range inputs {
		quantity := input.Quantity
		if quantity == 0 {
			quantity = 1
		}

		switch catalog.ItemKind(input.Kind) {
		case catalog.ItemTest:
			test, err := s.catalog.GetTestByCode(ctx, input.Code)
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return nil, nil, fmt.Errorf("%w: test %s", ErrUnknownItem, input.Code)
				}
				return nil, nil, fmt.Errorf("failed to resolve test %s: %w", input.Code, err)
			}
			if !test.Active {
				return nil, nil, fmt.Errorf("%w: test %s", ErrUnknownItem, input.Code)
			}
			lineItems = append(lineItems, catalog.LineItem{
				Code:           test.Code,
				Name:           test.Name,
				Kind:           catalog.ItemTest,
				Quantity:       quantity,
				UnitPriceCents: test.PriceCents,
			})
			orderItems = append(orderItems, models.OrderItem{
				ItemCode:       test.Code,
				ItemName:       test.Name,
				Quantity:       quantity,
				UnitPriceCents: test.PriceCents,
			})
		case catalog.ItemPackage:
			pkg, err := s.catalog.GetPackageByCode(ctx, input.Code)
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return nil, nil, fmt.Errorf("%w: package %s", ErrUnknownItem, input.Code)
				}
				return nil, nil, fmt.Errorf("failed to resolve package %s: %w", input.Code, err)
			}
			if !pkg.Active {
				return nil, nil, fmt.Errorf("%w: package %s", ErrUnknownItem, input.Code)
			}
			lineItems = append(lineItems, catalog.LineItem{
				Code:              pkg.Code,
				Name:              pkg.Name,
				Kind:              catalog.ItemPackage,
				Quantity:          quantity,
				UnitPriceCents:    pkg.PriceCents,
				ComparePriceCents: pkg.ComparePriceCents,
			})
			orderItems = append(orderItems, models.OrderItem{
				ItemCode:       pkg.Code,
				ItemName:       pkg.Name,
				Quantity:       quantity,
				UnitPriceCents: pkg.PriceCents,
			})
		default:
			return nil, nil, fmt.Errorf("%w: kind %q", ErrUnknownItem, input.Kind)
		}
	}

	return lineItems, orderItems, nil
}

func stripeItems(items []models.OrderItem) []payments.CheckoutItem {
	out := make([]payments.CheckoutItem, 0, len(items))
	for _, item := range items {
		out = append(out, payments.CheckoutItem{
			Name:           item.ItemName,
			Quantity:       int64(item.Quantity),
			UnitPriceCents: int64(item.UnitPriceCents),
		})
	}
	return out
}

// ConfirmPaid moves a prepaid order from pending to confirmed after the
// payment webhook validates. Repeated webhook deliveries land on the
// idempotent same-status path.
func (s *CheckoutService) ConfirmPaid(ctx context.Context, stripeSessionID string) (*models.Order, error) {
	logger := logging.FromContext(ctx, s.logger)

	order, err := s.orders.GetByStripeSessionID(ctx, stripeSessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order for session: %w", err)
	}

	logger.InfoContext(ctx, "payment confirmed",
		slog.String("order_number", order.OrderNumber),
	)
	return s.lifecycle.Transition(ctx, order.ID, models.StatusConfirmed)
}
