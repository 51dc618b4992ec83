package models

import (
	"time"

	"github.com/google/uuid"
)

type VisitStatus string

const (
	VisitScheduled  VisitStatus = "scheduled"
	VisitInProgress VisitStatus = "in_progress"
	VisitCompleted  VisitStatus = "completed"
	VisitCancelled  VisitStatus = "cancelled"
)

var visitTransitions = map[VisitStatus][]VisitStatus{
	VisitScheduled:  {VisitInProgress, VisitCancelled},
	VisitInProgress: {VisitCompleted, VisitCancelled},
	VisitCompleted:  {},
	VisitCancelled:  {},
}

func (s VisitStatus) Valid() bool {
	_, ok := visitTransitions[s]
	return ok
}

func (s VisitStatus) Terminal() bool {
	return s == VisitCompleted || s == VisitCancelled
}

func (s VisitStatus) CanTransitionTo(target VisitStatus) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	for _, next := range visitTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func VisitStatuses() []VisitStatus {
	return []VisitStatus{VisitScheduled, VisitInProgress, VisitCompleted, VisitCancelled}
}

// HomeVisit is the sample-collection appointment for an order. There is at
// most one visit per order. OTP is stored encrypted and only decrypted for
// the notification to the patient and the agent's check-in.
type HomeVisit struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       uuid.UUID   `json:"order_id"`
	ScheduledDate time.Time   `json:"scheduled_date"`
	TimeSlot      string      `json:"time_slot"`
	Status        VisitStatus `json:"status"`
	AgentID       *uuid.UUID  `json:"agent_id,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	OTP           string      `json:"-"`
	CollectedAt   time.Time   `json:"collected_at,omitzero"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
