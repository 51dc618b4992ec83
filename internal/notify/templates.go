package notify

import "errors"

// ErrUnknownTemplate is returned when no template exists for an event.
var ErrUnknownTemplate = errors.New("unknown notification template")

// Template holds the subject and body for one event. Placeholders use
// {{key}} syntax and are filled by Render.
type Template struct {
	Subject string
	Body    string
}

// defaultTemplates is the built-in registry. It is populated once at
// startup and never mutated afterwards.
var defaultTemplates = map[Event]Template{
	EventOrderConfirmed: {
		Subject: "Order Confirmed - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"Your order {{order_number}} has been confirmed. " +
			"We will reach out shortly to schedule your sample collection.\n\n" +
			"Track your order: {{tracking_url}}\n\n" +
			"Questions? Contact us at {{support_contact}}.",
	},
	EventCollectionScheduled: {
		Subject: "Sample Collection Scheduled - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"Sample collection for order {{order_number}} is scheduled on " +
			"{{visit_date}} ({{time_slot}}).\n\n" +
			"Please keep your OTP handy to verify the agent: {{otp}}\n\n" +
			"Track your order: {{tracking_url}}",
	},
	EventSampleCollected: {
		Subject: "Sample Collected - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"Your sample for order {{order_number}} has been collected and is " +
			"on its way to the lab.\n\n" +
			"Track your order: {{tracking_url}}",
	},
	EventOrderProcessing: {
		Subject: "Sample Processing Started - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"The lab has started processing your sample for order " +
			"{{order_number}}. We will notify you when your report is ready.\n\n" +
			"Track your order: {{tracking_url}}",
	},
	EventReportReady: {
		Subject: "Your Report Is Ready - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"Your report for order {{order_number}} is ready.\n\n" +
			"Download it here: {{report_url}}\n\n" +
			"Questions? Contact us at {{support_contact}}.",
	},
	EventOrderCompleted: {
		Subject: "Order Completed - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"Your order {{order_number}} is now complete. Thank you for " +
			"choosing us for your health checkup.\n\n" +
			"Questions? Contact us at {{support_contact}}.",
	},
	EventOrderCancelled: {
		Subject: "Order Cancelled - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"Your order {{order_number}} has been cancelled. If this was not " +
			"expected, please contact us at {{support_contact}}.",
	},
	EventHomeVisitScheduled: {
		Subject: "Home Visit Agent Assigned - {{order_number}}",
		Body: "Hi {{patient_name}},\n\n" +
			"{{agent_name}} will visit you on {{visit_date}} ({{time_slot}}) " +
			"to collect your sample for order {{order_number}}.\n\n" +
			"Verify the agent with your OTP: {{otp}}",
	},
}

// Templates returns a copy of the built-in registry.
func Templates() map[Event]Template {
	out := make(map[Event]Template, len(defaultTemplates))
	for event, tpl := range defaultTemplates {
		out[event] = tpl
	}
	return out
}
