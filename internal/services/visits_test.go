package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/notify"
)

type fakeVisitStore struct {
	visits map[uuid.UUID]*models.HomeVisit
}

func newFakeVisitStore(visits ...*models.HomeVisit) *fakeVisitStore {
	store := &fakeVisitStore{visits: make(map[uuid.UUID]*models.HomeVisit)}
	for _, visit := range visits {
		store.visits[visit.ID] = visit
	}
	return store
}

func (f *fakeVisitStore) Create(_ context.Context, visit *models.HomeVisit) error {
	for _, existing := range f.visits {
		if existing.OrderID == visit.OrderID {
			return errors.New("duplicate order_id")
		}
	}
	f.visits[visit.ID] = visit
	return nil
}

func (f *fakeVisitStore) GetByID(_ context.Context, id uuid.UUID) (*models.HomeVisit, error) {
	visit, ok := f.visits[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *visit
	return &copied, nil
}

func (f *fakeVisitStore) GetByOrder(_ context.Context, orderID uuid.UUID) (*models.HomeVisit, error) {
	for _, visit := range f.visits {
		if visit.OrderID == orderID {
			copied := *visit
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeVisitStore) ListForAgent(_ context.Context, agentID uuid.UUID) ([]*models.HomeVisit, error) {
	var out []*models.HomeVisit
	for _, visit := range f.visits {
		if visit.AgentID != nil && *visit.AgentID == agentID {
			out = append(out, visit)
		}
	}
	return out, nil
}

func (f *fakeVisitStore) AssignAgent(_ context.Context, id, agentID uuid.UUID, notes string) error {
	visit, ok := f.visits[id]
	if !ok || visit.AgentID != nil {
		return db.ErrNotFound
	}
	visit.AgentID = &agentID
	if notes != "" {
		visit.Notes = notes
	}
	return nil
}

func (f *fakeVisitStore) UpdateStatus(_ context.Context, id uuid.UUID, expected, next models.VisitStatus) error {
	visit, ok := f.visits[id]
	if !ok || visit.Status != expected {
		return db.ErrNotFound
	}
	visit.Status = next
	return nil
}

// plainEncryptor reverses strings so ciphertexts differ from plaintexts
// without real key material.
type plainEncryptor struct{}

func (plainEncryptor) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (plainEncryptor) Decrypt(ciphertext string) (string, error) {
	if len(ciphertext) < 4 || ciphertext[:4] != "enc:" {
		return "", errors.New("bad ciphertext")
	}
	return ciphertext[4:], nil
}

type visitFixture struct {
	svc       *VisitService
	visits    *fakeVisitStore
	orders    *fakeOrderStore
	disp      *fakeDispatcher
	order     *models.Order
	patientID uuid.UUID
	agentID   uuid.UUID
}

func newVisitFixture(t *testing.T, orderStatus models.OrderStatus) *visitFixture {
	t.Helper()

	order := testOrder(orderStatus)
	orders := newFakeOrderStore(order)
	agentID := uuid.New()
	patients := &fakePatientStore{patients: map[uuid.UUID]*models.Patient{
		order.PatientID: {ID: order.PatientID, Role: models.RolePatient, Name: "Asha", Email: "asha@example.com", Phone: "+15550100"},
		agentID:         {ID: agentID, Role: models.RoleAgent, Name: "Ravi", Email: "ravi@lab.example"},
	}}
	disp := &fakeDispatcher{delivered: true}
	lifecycle := NewLifecycleService(orders, patients, nil, nil, disp, "https://lab.example", "care@lab.example", nil)
	visits := newFakeVisitStore()
	svc := NewVisitService(visits, patients, lifecycle, disp, plainEncryptor{}, nil)

	return &visitFixture{
		svc:       svc,
		visits:    visits,
		orders:    orders,
		disp:      disp,
		order:     order,
		patientID: order.PatientID,
		agentID:   agentID,
	}
}

func setTestOTP(t *testing.T, otp string) {
	t.Helper()
	orig := generateOTP
	generateOTP = func() (string, error) { return otp, nil }
	t.Cleanup(func() { generateOTP = orig })
}

func TestScheduleVisit(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)

	visit, err := fx.svc.Schedule(context.Background(), ScheduleInput{
		OrderNumber:   fx.order.OrderNumber,
		ScheduledDate: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		TimeSlot:      "09:00-11:00",
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if visit.Status != models.VisitScheduled {
		t.Errorf("visit status = %s", visit.Status)
	}
	if visit.OTP != "enc:123456" {
		t.Errorf("OTP stored as %q, want encrypted form", visit.OTP)
	}
	if fx.orders.orders[fx.order.ID].Status != models.StatusCollectionScheduled {
		t.Errorf("order status = %s, want sample_collection_scheduled", fx.orders.orders[fx.order.ID].Status)
	}

	if len(fx.disp.calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(fx.disp.calls))
	}
	call := fx.disp.calls[0]
	if call.event != notify.EventCollectionScheduled {
		t.Errorf("event = %s", call.event)
	}
	if call.data["otp"] != "123456" {
		t.Errorf("notification otp = %q, want plaintext", call.data["otp"])
	}
	if call.data["visit_date"] != "2026-09-02" || call.data["time_slot"] != "09:00-11:00" {
		t.Errorf("visit data = %v", call.data)
	}
}

func TestScheduleRequiresConfirmedOrder(t *testing.T) {
	setTestOTP(t, "123456")

	for _, status := range []models.OrderStatus{
		models.StatusPending, models.StatusCollectionScheduled, models.StatusProcessing, models.StatusCancelled,
	} {
		fx := newVisitFixture(t, status)
		_, err := fx.svc.Schedule(context.Background(), ScheduleInput{
			OrderNumber:   fx.order.OrderNumber,
			ScheduledDate: time.Now(),
			TimeSlot:      "09:00-11:00",
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Schedule() with order %s: error = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestScheduleRejectsSecondVisit(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)

	input := ScheduleInput{OrderNumber: fx.order.OrderNumber, ScheduledDate: time.Now(), TimeSlot: "09:00-11:00"}
	if _, err := fx.svc.Schedule(context.Background(), input); err != nil {
		t.Fatalf("first Schedule() error = %v", err)
	}

	// Put the order back to confirmed to isolate the duplicate guard.
	fx.orders.orders[fx.order.ID].Status = models.StatusConfirmed
	if _, err := fx.svc.Schedule(context.Background(), input); !errors.Is(err, ErrConflict) {
		t.Errorf("second Schedule() error = %v, want ErrConflict", err)
	}
}

func TestScheduleUnknownOrder(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)

	_, err := fx.svc.Schedule(context.Background(), ScheduleInput{
		OrderNumber: "LD-999999", ScheduledDate: time.Now(), TimeSlot: "09:00-11:00",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Schedule() error = %v, want ErrNotFound", err)
	}
}

func scheduledVisit(fx *visitFixture, t *testing.T) *models.HomeVisit {
	t.Helper()
	visit, err := fx.svc.Schedule(context.Background(), ScheduleInput{
		OrderNumber:   fx.order.OrderNumber,
		ScheduledDate: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		TimeSlot:      "09:00-11:00",
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	fx.disp.calls = nil
	return visit
}

func TestAssignAgent(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	assigned, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.agentID, "third floor, ring twice")
	if err != nil {
		t.Fatalf("AssignAgent() error = %v", err)
	}
	if assigned.AgentID == nil || *assigned.AgentID != fx.agentID {
		t.Error("agent not recorded on visit")
	}
	if assigned.Notes != "third floor, ring twice" {
		t.Errorf("notes = %q", assigned.Notes)
	}

	if len(fx.disp.calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(fx.disp.calls))
	}
	call := fx.disp.calls[0]
	if call.event != notify.EventHomeVisitScheduled {
		t.Errorf("event = %s", call.event)
	}
	if call.data["agent_name"] != "Ravi" || call.data["otp"] != "123456" {
		t.Errorf("notification data = %v", call.data)
	}
}

func TestAssignAgentOnlyOnce(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.agentID, ""); err != nil {
		t.Fatalf("AssignAgent() error = %v", err)
	}
	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.agentID, ""); !errors.Is(err, ErrAlreadyAssigned) {
		t.Errorf("second AssignAgent() error = %v, want ErrAlreadyAssigned", err)
	}
}

func TestAssignAgentValidation(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	if _, err := fx.svc.AssignAgent(context.Background(), uuid.New(), fx.agentID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown visit: error = %v, want ErrNotFound", err)
	}
	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, uuid.New(), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown agent: error = %v, want ErrNotFound", err)
	}
	// Patients cannot be assigned as agents.
	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.patientID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("patient as agent: error = %v, want ErrNotFound", err)
	}

	// A cancelled visit no longer accepts an agent.
	if _, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitCancelled}); err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.agentID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancelled visit: error = %v, want ErrInvalidTransition", err)
	}
}

func TestVisitStartRequiresAgentAndOTP(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	_, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitInProgress, OTP: "123456"})
	if !errors.Is(err, ErrAgentRequired) {
		t.Fatalf("UpdateStatus() without agent: error = %v, want ErrAgentRequired", err)
	}

	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.agentID, ""); err != nil {
		t.Fatalf("AssignAgent() error = %v", err)
	}

	_, err = fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitInProgress, OTP: "654321"})
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("UpdateStatus() with wrong OTP: error = %v, want ErrInvalidOTP", err)
	}

	updated, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitInProgress, OTP: "123456"})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Status != models.VisitInProgress {
		t.Errorf("visit status = %s", updated.Status)
	}
}

func TestVisitCompletionDrivesOrder(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	if _, err := fx.svc.AssignAgent(context.Background(), visit.ID, fx.agentID, ""); err != nil {
		t.Fatalf("AssignAgent() error = %v", err)
	}
	if _, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitInProgress, OTP: "123456"}); err != nil {
		t.Fatalf("UpdateStatus(in_progress) error = %v", err)
	}
	fx.disp.calls = nil

	updated, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitCompleted})
	if err != nil {
		t.Fatalf("UpdateStatus(completed) error = %v", err)
	}
	if updated.Status != models.VisitCompleted {
		t.Errorf("visit status = %s", updated.Status)
	}
	if updated.CollectedAt.IsZero() {
		t.Error("collected_at not stamped")
	}
	if fx.orders.orders[fx.order.ID].Status != models.StatusSampleCollected {
		t.Errorf("order status = %s, want sample_collected", fx.orders.orders[fx.order.ID].Status)
	}
	if len(fx.disp.calls) != 1 || fx.disp.calls[0].event != notify.EventSampleCollected {
		t.Errorf("expected sample_collected notification, got %v", fx.disp.calls)
	}
}

func TestVisitIllegalTransitions(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	// Completion straight from scheduled skips in_progress.
	if _, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitCompleted}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("scheduled -> completed: error = %v, want ErrInvalidTransition", err)
	}

	// Cancel, then nothing further is allowed.
	if _, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitCancelled}); err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	if _, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitInProgress, OTP: "123456"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancelled -> in_progress: error = %v, want ErrInvalidTransition", err)
	}
}

func TestVisitSameStatusIsNoOp(t *testing.T) {
	setTestOTP(t, "123456")
	fx := newVisitFixture(t, models.StatusConfirmed)
	visit := scheduledVisit(fx, t)

	updated, err := fx.svc.UpdateStatus(context.Background(), visit.ID, VisitStatusInput{Target: models.VisitScheduled})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Status != models.VisitScheduled {
		t.Errorf("visit status = %s", updated.Status)
	}
	if len(fx.disp.calls) != 0 {
		t.Error("notification sent for a no-op")
	}
}
