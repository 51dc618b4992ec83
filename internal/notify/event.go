// Package notify dispatches order and visit notifications to patients
// over email, SMS, and WhatsApp channels.
package notify

// Event identifies a notification trigger. The set is closed; templates
// exist only for events listed here.
type Event string

const (
	EventOrderConfirmed      Event = "order_confirmed"
	EventCollectionScheduled Event = "sample_collection_scheduled"
	EventSampleCollected     Event = "sample_collected"
	EventOrderProcessing     Event = "order_processing"
	EventReportReady         Event = "report_ready"
	EventOrderCompleted      Event = "order_completed"
	EventOrderCancelled      Event = "order_cancelled"
	EventHomeVisitScheduled  Event = "home_visit_scheduled"
)

// Events returns every known event.
func Events() []Event {
	return []Event{
		EventOrderConfirmed,
		EventCollectionScheduled,
		EventSampleCollected,
		EventOrderProcessing,
		EventReportReady,
		EventOrderCompleted,
		EventOrderCancelled,
		EventHomeVisitScheduled,
	}
}

// Recipient is the addressee of a notification. A channel is only
// attempted when the recipient carries the contact it needs.
type Recipient struct {
	Name  string
	Email string
	Phone string
}
