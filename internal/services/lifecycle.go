package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/notify"
	"github.com/labdeskapp/labdesk/internal/observability"
)

type orderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.OrderStatus) error
}

type patientStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Patient, error)
}

type reportStore interface {
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Report, error)
}

type reportPresigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, event notify.Event, recipient notify.Recipient, data map[string]string) (bool, error)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, notify.Event, notify.Recipient, map[string]string) (bool, error) {
	return false, nil
}

// statusEvents maps each reachable status to the notification sent when
// an order enters it. Pending has no event; orders are created pending.
var statusEvents = map[models.OrderStatus]notify.Event{
	models.StatusConfirmed:           notify.EventOrderConfirmed,
	models.StatusCollectionScheduled: notify.EventCollectionScheduled,
	models.StatusSampleCollected:     notify.EventSampleCollected,
	models.StatusProcessing:          notify.EventOrderProcessing,
	models.StatusReportReady:         notify.EventReportReady,
	models.StatusCompleted:           notify.EventOrderCompleted,
	models.StatusCancelled:           notify.EventOrderCancelled,
}

// LifecycleService owns order status transitions. Every status move in
// the system funnels through Transition so the transition table, the
// compare-and-set update, and the notification fan-out apply uniformly.
type LifecycleService struct {
	orders         orderStore
	patients       patientStore
	reports        reportStore
	storage        reportPresigner
	dispatcher     dispatcher
	baseURL        string
	supportContact string
	logger         *slog.Logger
}

func NewLifecycleService(orders orderStore, patients patientStore, reports reportStore, storage reportPresigner, dispatcher dispatcher, baseURL, supportContact string, logger *slog.Logger) *LifecycleService {
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	return &LifecycleService{
		orders:         orders,
		patients:       patients,
		reports:        reports,
		storage:        storage,
		dispatcher:     dispatcher,
		baseURL:        baseURL,
		supportContact: supportContact,
		logger:         logger,
	}
}

func (s *LifecycleService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// GetOrder returns an order by ID.
func (s *LifecycleService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetOrderByNumber returns an order by its public order number.
func (s *LifecycleService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// Transition moves the order to target. Requesting the current status is
// an idempotent no-op that sends no notification.
func (s *LifecycleService) Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) (*models.Order, error) {
	return s.TransitionWithData(ctx, orderID, target, nil)
}

// TransitionWithData is Transition with extra template data merged into
// the notification payload. Visit scheduling uses it to carry the visit
// date, slot, and OTP.
func (s *LifecycleService) TransitionWithData(ctx context.Context, orderID uuid.UUID, target models.OrderStatus, extra map[string]string) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.lifecycle.transition",
		sentry.WithOpName("service.lifecycle"),
		sentry.WithDescription("Transition"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.Status == target {
		logger.InfoContext(ctx, "order already in requested status",
			slog.String("order_number", order.OrderNumber),
			slog.String("status", string(target)),
		)
		return order, nil
	}

	if !order.Status.CanTransitionTo(target) {
		meter.Count("order.transition.rejected", 1, sentry.WithAttributes(
			attribute.String("from", string(order.Status)),
			attribute.String("to", string(target)),
		))
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, order.Status, target); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// The order existed moments ago; someone else moved it.
			meter.Count("order.transition.conflict", 1)
			return nil, fmt.Errorf("%w: order %s", ErrConflict, order.OrderNumber)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	previous := order.Status
	order.Status = target
	logger.InfoContext(ctx, "order status updated",
		slog.String("order_number", order.OrderNumber),
		slog.String("from", string(previous)),
		slog.String("to", string(target)),
	)
	meter.Count("order.transition.applied", 1, sentry.WithAttributes(
		attribute.String("to", string(target)),
	))

	s.notifyStatusChange(ctx, order, target, extra)
	return order, nil
}

// notifyStatusChange sends the status notification after the update has
// committed. Delivery problems never affect the transition outcome.
func (s *LifecycleService) notifyStatusChange(ctx context.Context, order *models.Order, status models.OrderStatus, extra map[string]string) {
	logger := s.loggerFromContext(ctx)

	event, ok := statusEvents[status]
	if !ok {
		return
	}

	patient, err := s.patients.GetByID(ctx, order.PatientID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load patient for notification",
			slog.String("order_number", order.OrderNumber),
			slog.Any("error", err),
		)
		return
	}

	data := s.templateData(order, patient)
	for key, value := range extra {
		data[key] = value
	}

	if status == models.StatusReportReady && data["report_url"] == "" {
		if url := s.reportURL(ctx, order); url != "" {
			data["report_url"] = url
		}
	}

	recipient := notify.Recipient{Name: patient.Name, Email: patient.Email, Phone: patient.Phone}
	delivered, err := s.dispatcher.Dispatch(ctx, event, recipient, data)
	if err != nil {
		logger.ErrorContext(ctx, "notification dispatch failed",
			slog.String("order_number", order.OrderNumber),
			slog.String("event", string(event)),
			slog.Any("error", err),
		)
		return
	}
	if !delivered {
		logger.WarnContext(ctx, "notification not delivered on any channel",
			slog.String("order_number", order.OrderNumber),
			slog.String("event", string(event)),
		)
	}
}

func (s *LifecycleService) templateData(order *models.Order, patient *models.Patient) map[string]string {
	return map[string]string{
		"patient_name":    patient.Name,
		"order_number":    order.OrderNumber,
		"tracking_url":    fmt.Sprintf("%s/orders/%s", s.baseURL, order.OrderNumber),
		"support_contact": s.supportContact,
	}
}

func (s *LifecycleService) reportURL(ctx context.Context, order *models.Order) string {
	logger := s.loggerFromContext(ctx)

	if s.reports == nil || s.storage == nil {
		return ""
	}

	report, err := s.reports.GetByOrder(ctx, order.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load report for notification",
			slog.String("order_number", order.OrderNumber),
			slog.Any("error", err),
		)
		return ""
	}

	url, err := s.storage.PresignGet(ctx, report.FileKey, 24*time.Hour)
	if err != nil {
		logger.ErrorContext(ctx, "failed to presign report URL",
			slog.String("order_number", order.OrderNumber),
			slog.Any("error", err),
		)
		return ""
	}
	return url
}
