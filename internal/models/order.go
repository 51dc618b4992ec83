package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending             OrderStatus = "pending"
	StatusConfirmed           OrderStatus = "confirmed"
	StatusCollectionScheduled OrderStatus = "sample_collection_scheduled"
	StatusSampleCollected     OrderStatus = "sample_collected"
	StatusProcessing          OrderStatus = "processing"
	StatusReportReady         OrderStatus = "report_ready"
	StatusCompleted           OrderStatus = "completed"
	StatusCancelled           OrderStatus = "cancelled"
)

// orderTransitions is the adjacency table of legal order status moves.
// Cancellation is handled separately: it is legal from any non-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:             {StatusConfirmed},
	StatusConfirmed:           {StatusCollectionScheduled},
	StatusCollectionScheduled: {StatusSampleCollected},
	StatusSampleCollected:     {StatusProcessing},
	StatusProcessing:          {StatusReportReady},
	StatusReportReady:         {StatusCompleted},
	StatusCompleted:           {},
	StatusCancelled:           {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the move from s to target is in the
// adjacency table. Requesting the current status again is not a legal
// edge; callers treat it as an idempotent no-op before consulting this.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	if target == StatusCancelled {
		return !s.Terminal()
	}
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// OrderStatuses returns every member of the status enum.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		StatusPending,
		StatusConfirmed,
		StatusCollectionScheduled,
		StatusSampleCollected,
		StatusProcessing,
		StatusReportReady,
		StatusCompleted,
		StatusCancelled,
	}
}

type PaymentMethod string

const (
	PaymentPrepaid        PaymentMethod = "prepaid"
	PaymentCollectOnVisit PaymentMethod = "collect_on_visit"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentPrepaid || m == PaymentCollectOnVisit
}

type Order struct {
	ID                      uuid.UUID     `json:"id"`
	OrderNumber             string        `json:"order_number"`
	PatientID               uuid.UUID     `json:"patient_id"`
	Items                   []OrderItem   `json:"items"`
	TotalCents              int           `json:"total_cents"`
	DiscountCents           int           `json:"discount_cents"`
	FinalCents              int           `json:"final_cents"`
	PaymentMethod           PaymentMethod `json:"payment_method"`
	StripeCheckoutSessionID string        `json:"stripe_checkout_session_id,omitempty"`
	Status                  OrderStatus   `json:"status"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
	ConfirmedAt             time.Time     `json:"confirmed_at,omitzero"`
	CollectedAt             time.Time     `json:"collected_at,omitzero"`
	CompletedAt             time.Time     `json:"completed_at,omitzero"`
	CancelledAt             time.Time     `json:"cancelled_at,omitzero"`
}

type OrderItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	ItemCode       string    `json:"item_code"`
	ItemName       string    `json:"item_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
}
