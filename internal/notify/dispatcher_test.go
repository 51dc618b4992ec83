package notify

import (
	"context"
	"errors"
	"testing"
)

type fakeChannel struct {
	name      string
	needPhone bool
	sent      bool
	err       error
	calls     int
	lastSubj  string
	lastBody  string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) CanReach(recipient Recipient) bool {
	if f.needPhone {
		return recipient.Phone != ""
	}
	return recipient.Email != ""
}

func (f *fakeChannel) Send(_ context.Context, _ Recipient, subject, body string) (bool, error) {
	f.calls++
	f.lastSubj = subject
	f.lastBody = body
	return f.sent, f.err
}

func TestDispatchUnknownEvent(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{name: "email", sent: true}
	d := NewDispatcher(nil, nil, channel)

	delivered, err := d.Dispatch(context.Background(), Event("no_such_event"), Recipient{Email: "p@example.com"}, nil)
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("Dispatch() error = %v, want ErrUnknownTemplate", err)
	}
	if delivered {
		t.Error("Dispatch() delivered = true for unknown event")
	}
	if channel.calls != 0 {
		t.Errorf("channel called %d times for unknown event", channel.calls)
	}
}

func TestDispatchCustomRegistry(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{name: "email", sent: true}
	registry := map[Event]Template{
		EventOrderConfirmed: {
			Subject: "Hi {{patient_name}}",
			Body:    "Order {{order_number}} is in. Missing: {{not_provided}}.",
		},
	}
	d := NewDispatcher(nil, registry, channel)

	data := map[string]string{"patient_name": "Asha", "order_number": "LD-000042"}
	delivered, err := d.Dispatch(context.Background(), EventOrderConfirmed, Recipient{Email: "p@example.com"}, data)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !delivered {
		t.Error("Dispatch() delivered = false, want true")
	}
	if channel.lastSubj != "Hi Asha" {
		t.Errorf("subject = %q", channel.lastSubj)
	}
	if channel.lastBody != "Order LD-000042 is in. Missing: ." {
		t.Errorf("body = %q", channel.lastBody)
	}

	// Events outside the injected registry are unknown.
	if _, err := d.Dispatch(context.Background(), EventReportReady, Recipient{Email: "p@example.com"}, nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("Dispatch() error = %v, want ErrUnknownTemplate", err)
	}
}

func TestDispatchDeliversAndRenders(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{name: "email", sent: true}
	d := NewDispatcher(nil, nil, channel)

	data := map[string]string{
		"patient_name": "Asha",
		"order_number": "LD-000042",
		"tracking_url": "https://lab.example/orders/LD-000042",
	}
	delivered, err := d.Dispatch(context.Background(), EventOrderConfirmed, Recipient{Email: "p@example.com"}, data)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !delivered {
		t.Error("Dispatch() delivered = false, want true")
	}
	if channel.lastSubj != "Order Confirmed - LD-000042" {
		t.Errorf("subject = %q", channel.lastSubj)
	}
}

func TestDispatchSkipsUnreachableChannels(t *testing.T) {
	t.Parallel()

	emailCh := &fakeChannel{name: "email", sent: true}
	smsCh := &fakeChannel{name: "sms", needPhone: true, sent: true}
	d := NewDispatcher(nil, nil, emailCh, smsCh)

	// Recipient has a phone but no email address.
	delivered, err := d.Dispatch(context.Background(), EventOrderConfirmed, Recipient{Phone: "+15550100"}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !delivered {
		t.Error("Dispatch() delivered = false, want true via sms")
	}
	if emailCh.calls != 0 {
		t.Errorf("email channel called %d times without an address", emailCh.calls)
	}
	if smsCh.calls != 1 {
		t.Errorf("sms channel called %d times, want 1", smsCh.calls)
	}
}

func TestDispatchNoReachableChannel(t *testing.T) {
	t.Parallel()

	emailCh := &fakeChannel{name: "email", sent: true}
	d := NewDispatcher(nil, nil, emailCh)

	delivered, err := d.Dispatch(context.Background(), EventOrderConfirmed, Recipient{}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if delivered {
		t.Error("Dispatch() delivered = true with no reachable channel")
	}
}

func TestDispatchSwallowsTransportErrors(t *testing.T) {
	t.Parallel()

	failing := &fakeChannel{name: "email", err: errors.New("smtp down")}
	working := &fakeChannel{name: "sms", needPhone: true, sent: true}
	d := NewDispatcher(nil, nil, failing, working)

	recipient := Recipient{Email: "p@example.com", Phone: "+15550100"}
	delivered, err := d.Dispatch(context.Background(), EventReportReady, recipient, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, transport errors must not propagate", err)
	}
	if !delivered {
		t.Error("Dispatch() delivered = false, want true via the working channel")
	}
}

func TestDispatchStubChannelsReportSuccess(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil, nil, NewSMSChannel(), NewWhatsAppChannel())

	delivered, err := d.Dispatch(context.Background(), EventOrderConfirmed, Recipient{Phone: "+15550100"}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !delivered {
		t.Error("Dispatch() delivered = false, stub channels report success")
	}
}

func TestTemplatesCoverEveryEvent(t *testing.T) {
	t.Parallel()

	templates := Templates()
	for _, event := range Events() {
		if _, ok := templates[event]; !ok {
			t.Errorf("no template registered for event %q", event)
		}
	}
}

func TestTemplatesReturnsCopy(t *testing.T) {
	t.Parallel()

	first := Templates()
	first[EventOrderConfirmed] = Template{Subject: "mutated"}

	second := Templates()
	if second[EventOrderConfirmed].Subject == "mutated" {
		t.Error("mutating the returned map leaked into the registry")
	}
}
