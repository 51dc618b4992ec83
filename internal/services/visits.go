package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/labdeskapp/labdesk/internal/crypto"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/notify"
	"github.com/labdeskapp/labdesk/internal/observability"
)

type visitStore interface {
	Create(ctx context.Context, visit *models.HomeVisit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.HomeVisit, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.HomeVisit, error)
	ListForAgent(ctx context.Context, agentID uuid.UUID) ([]*models.HomeVisit, error)
	AssignAgent(ctx context.Context, id, agentID uuid.UUID, notes string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.VisitStatus) error
}

type orderTransitioner interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) (*models.Order, error)
	TransitionWithData(ctx context.Context, orderID uuid.UUID, target models.OrderStatus, extra map[string]string) (*models.Order, error)
}

type otpEncryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// VisitService coordinates home sample-collection visits. It owns the
// visit state machine and drives the order forward when a visit
// completes.
type VisitService struct {
	visits     visitStore
	patients   patientStore
	lifecycle  orderTransitioner
	dispatcher dispatcher
	encryptor  otpEncryptor
	logger     *slog.Logger
}

func NewVisitService(visits visitStore, patients patientStore, lifecycle orderTransitioner, dispatcher dispatcher, encryptor otpEncryptor, logger *slog.Logger) *VisitService {
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	return &VisitService{
		visits:     visits,
		patients:   patients,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		encryptor:  encryptor,
		logger:     logger,
	}
}

func (s *VisitService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// generateOTP is swapped in tests for a deterministic code.
var generateOTP = func() (string, error) {
	return crypto.GenerateOTP(6)
}

type ScheduleInput struct {
	OrderNumber   string    `json:"order_number" validate:"required"`
	ScheduledDate time.Time `json:"scheduled_date" validate:"required"`
	TimeSlot      string    `json:"time_slot" validate:"required"`
	Notes         string    `json:"notes"`
}

// Schedule books the visit for a confirmed order and moves the order to
// sample_collection_scheduled. The OTP is stored encrypted; the patient
// receives the plaintext in the scheduling notification.
func (s *VisitService) Schedule(ctx context.Context, input ScheduleInput) (*models.HomeVisit, error) {
	span := sentry.StartSpan(
		ctx,
		"service.visit.schedule",
		sentry.WithOpName("service.visit"),
		sentry.WithDescription("Schedule"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	order, err := s.lifecycle.GetOrderByNumber(ctx, input.OrderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: order %s is %s, visits are scheduled from confirmed",
			ErrInvalidTransition, order.OrderNumber, order.Status)
	}

	if _, err := s.visits.GetByOrder(ctx, order.ID); err == nil {
		return nil, fmt.Errorf("%w: order %s already has a visit", ErrConflict, order.OrderNumber)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing visit: %w", err)
	}

	otp, err := generateOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}
	encryptedOTP, err := s.encryptor.Encrypt(otp)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt OTP: %w", err)
	}

	visit := &models.HomeVisit{
		ID:            uuid.New(),
		OrderID:       order.ID,
		ScheduledDate: input.ScheduledDate,
		TimeSlot:      input.TimeSlot,
		Status:        models.VisitScheduled,
		Notes:         input.Notes,
		OTP:           encryptedOTP,
	}
	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, fmt.Errorf("failed to create visit: %w", err)
	}

	logger.InfoContext(ctx, "home visit scheduled",
		slog.String("order_number", order.OrderNumber),
		slog.String("visit_id", visit.ID.String()),
		slog.String("time_slot", visit.TimeSlot),
	)
	meter.Count("visit.scheduled", 1)

	extra := map[string]string{
		"visit_date": visit.ScheduledDate.Format("2006-01-02"),
		"time_slot":  visit.TimeSlot,
		"otp":        otp,
	}
	if _, err := s.lifecycle.TransitionWithData(ctx, order.ID, models.StatusCollectionScheduled, extra); err != nil {
		// The visit exists but the order did not move. Surface the error
		// so the admin retries; the duplicate-visit guard keeps this safe.
		return nil, fmt.Errorf("visit created but order transition failed: %w", err)
	}

	return visit, nil
}

// GetByID returns a visit by its ID.
func (s *VisitService) GetByID(ctx context.Context, id uuid.UUID) (*models.HomeVisit, error) {
	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return visit, nil
}

// GetByOrder returns the visit booked for an order.
func (s *VisitService) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.HomeVisit, error) {
	visit, err := s.visits.GetByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return visit, nil
}

// ListForAgent returns the visits assigned to an agent.
func (s *VisitService) ListForAgent(ctx context.Context, agentID uuid.UUID) ([]*models.HomeVisit, error) {
	return s.visits.ListForAgent(ctx, agentID)
}

// AssignAgent attaches an agent to an unassigned scheduled visit and
// notifies the patient. Reassignment is not supported.
func (s *VisitService) AssignAgent(ctx context.Context, visitID, agentID uuid.UUID, notes string) (*models.HomeVisit, error) {
	logger := s.loggerFromContext(ctx)

	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load visit: %w", err)
	}
	if visit.AgentID != nil {
		return nil, ErrAlreadyAssigned
	}
	if visit.Status != models.VisitScheduled {
		return nil, fmt.Errorf("%w: visit is %s, agents attach to scheduled visits", ErrInvalidTransition, visit.Status)
	}

	agent, err := s.patients.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: agent %s", ErrNotFound, agentID)
		}
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}
	if agent.Role != models.RoleAgent {
		return nil, fmt.Errorf("%w: user %s is not an agent", ErrNotFound, agentID)
	}

	if err := s.visits.AssignAgent(ctx, visitID, agentID, notes); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Lost the race with another assignment.
			return nil, ErrAlreadyAssigned
		}
		return nil, fmt.Errorf("failed to assign agent: %w", err)
	}
	visit.AgentID = &agentID
	if notes != "" {
		visit.Notes = notes
	}

	logger.InfoContext(ctx, "agent assigned to visit",
		slog.String("visit_id", visit.ID.String()),
		slog.String("agent", agent.Name),
	)
	observability.MeterFromContext(ctx).Count("visit.agent_assigned", 1)

	s.notifyAgentAssigned(ctx, visit, agent)
	return visit, nil
}

type VisitStatusInput struct {
	Target models.VisitStatus
	// OTP is required when starting the visit; the agent reads it back
	// from the patient.
	OTP string
}

// UpdateStatus moves the visit through its state machine. Completion
// drives the order to sample_collected.
func (s *VisitService) UpdateStatus(ctx context.Context, visitID uuid.UUID, input VisitStatusInput) (*models.HomeVisit, error) {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if !input.Target.Valid() {
		return nil, fmt.Errorf("%w: unknown visit status %q", ErrInvalidTransition, input.Target)
	}

	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load visit: %w", err)
	}

	if visit.Status == input.Target {
		return visit, nil
	}
	if !visit.Status.CanTransitionTo(input.Target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, visit.Status, input.Target)
	}

	if input.Target == models.VisitInProgress {
		if visit.AgentID == nil {
			return nil, ErrAgentRequired
		}
		otp, err := s.encryptor.Decrypt(visit.OTP)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt OTP: %w", err)
		}
		if input.OTP != otp {
			meter.Count("visit.otp_rejected", 1)
			return nil, ErrInvalidOTP
		}
	}

	if err := s.visits.UpdateStatus(ctx, visitID, visit.Status, input.Target); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: visit %s", ErrConflict, visitID)
		}
		return nil, fmt.Errorf("failed to update visit status: %w", err)
	}

	previous := visit.Status
	visit.Status = input.Target
	if input.Target == models.VisitCompleted {
		visit.CollectedAt = time.Now()
	}

	logger.InfoContext(ctx, "visit status updated",
		slog.String("visit_id", visit.ID.String()),
		slog.String("from", string(previous)),
		slog.String("to", string(input.Target)),
	)
	meter.Count("visit.transition.applied", 1)

	if input.Target == models.VisitCompleted {
		if _, err := s.lifecycle.Transition(ctx, visit.OrderID, models.StatusSampleCollected); err != nil {
			// The visit is complete either way; the order catches up when
			// the admin resolves the discrepancy.
			logger.ErrorContext(ctx, "failed to move order after visit completion",
				slog.String("visit_id", visit.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	return visit, nil
}

func (s *VisitService) notifyAgentAssigned(ctx context.Context, visit *models.HomeVisit, agent *models.Patient) {
	logger := s.loggerFromContext(ctx)

	order, err := s.lifecycle.GetOrder(ctx, visit.OrderID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load order for visit notification", slog.Any("error", err))
		return
	}
	patient, err := s.patients.GetByID(ctx, order.PatientID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load patient for visit notification", slog.Any("error", err))
		return
	}

	otp, err := s.encryptor.Decrypt(visit.OTP)
	if err != nil {
		logger.ErrorContext(ctx, "failed to decrypt OTP for visit notification", slog.Any("error", err))
		otp = ""
	}

	data := map[string]string{
		"patient_name": patient.Name,
		"order_number": order.OrderNumber,
		"agent_name":   agent.Name,
		"visit_date":   visit.ScheduledDate.Format("2006-01-02"),
		"time_slot":    visit.TimeSlot,
		"otp":          otp,
	}
	recipient := notify.Recipient{Name: patient.Name, Email: patient.Email, Phone: patient.Phone}
	if _, err := s.dispatcher.Dispatch(ctx, notify.EventHomeVisitScheduled, recipient, data); err != nil {
		logger.ErrorContext(ctx, "visit notification dispatch failed", slog.Any("error", err))
	}
}
