package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/cakeshop/order-notifications/internal/domain"
)

func TestChannel_Routing(t *testing.T) {
	want := map[domain.Channel][2]string{
		domain.ChannelOrderConfirmed:    {"order.confirmed", "/order-confirmation"},
		domain.ChannelOrderConfirmEmail: {"order.confirmation.email", "/email/order-confirmation"},
		domain.ChannelOrderConfirmSMS:   {"order.confirmation.sms", "/sms/order-confirmation"},
		domain.ChannelOutForDelivery:    {"order.out-for-delivery", "/sms/out-for-delivery"},
		domain.ChannelGenericSMS:        {"generic.sms", "/sms"},
	}

	for ch, w := range want {
		if got := ch.Queue(); got != w[0] {
			t.Fatalf("%s: expected queue %q, got %q", ch, w[0], got)
		}
		if got := ch.Endpoint(); got != w[1] {
			t.Fatalf("%s: expected endpoint %q, got %q", ch, w[1], got)
		}
		back, err := domain.ChannelForQueue(w[0])
		if err != nil || back != ch {
			t.Fatalf("ChannelForQueue(%q) = %q, %v", w[0], back, err)
		}
	}

	if len(domain.QueueNames()) != 5 {
		t.Fatalf("expected 5 queues, got %d", len(domain.QueueNames()))
	}
}

func TestChannelForKind(t *testing.T) {
	tests := []struct {
		kind string
		want domain.Channel
	}{
		{"order", domain.ChannelOrderConfirmed},
		{"email", domain.ChannelOrderConfirmEmail},
		{"sms", domain.ChannelOrderConfirmSMS},
		{"delivery", domain.ChannelOutForDelivery},
		{"generic", domain.ChannelGenericSMS},
		{"generic-sms", domain.ChannelGenericSMS},
	}
	for _, tc := range tests {
		got, err := domain.ChannelForKind(tc.kind)
		if err != nil {
			t.Fatalf("kind %q: unexpected error %v", tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("kind %q: expected %q, got %q", tc.kind, tc.want, got)
		}
	}

	if _, err := domain.ChannelForKind("fax"); err != domain.ErrUnknownChannel {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	t.Run("email order with numeric total", func(t *testing.T) {
		body := `{"orderId":"T-1","customerEmail":"a@b.com","customerName":"A",
			"items":[{"name":"Cake","quantity":1,"price":10}],"totalAmount":10}`
		msg, err := domain.Decode(domain.ChannelOrderConfirmEmail, []byte(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		order := msg.(*domain.EmailOnlyOrder)
		if order.OrderID != "T-1" || order.TotalAmount != 10 || len(order.Items) != 1 {
			t.Fatalf("unexpected decode result: %+v", order)
		}
	})

	t.Run("string amounts are accepted", func(t *testing.T) {
		body := `{"orderId":"S-1","customerName":"B","customerPhone":"+1","totalAmount":"75.50",
			"items":[{"name":"Cupcake","quantity":3,"price":"25.17"}]}`
		msg, err := domain.Decode(domain.ChannelOrderConfirmSMS, []byte(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		order := msg.(*domain.SMSOnlyOrder)
		if order.TotalAmount != 75.50 || order.Items[0].Price != 25.17 {
			t.Fatalf("unexpected amounts: %+v", order)
		}
	})

	t.Run("invalid json is malformed", func(t *testing.T) {
		_, err := domain.Decode(domain.ChannelGenericSMS, []byte(`{not json`))
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
		if !domain.IsValidationError(err) {
			t.Fatal("expected malformed payload to be a validation error")
		}
	})

	t.Run("non-object body is malformed", func(t *testing.T) {
		_, err := domain.Decode(domain.ChannelGenericSMS, []byte(`"hello"`))
		if err != domain.ErrMalformedPayload {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := domain.Decode(domain.ChannelGenericSMS, []byte(`{"to":"+1"}`))
		if err != domain.ErrMissingSMSMessage {
			t.Fatalf("expected ErrMissingSMSMessage, got %v", err)
		}
	})

	t.Run("combined confirmation needs a contact", func(t *testing.T) {
		_, err := domain.Decode(domain.ChannelOrderConfirmed,
			[]byte(`{"orderId":"O-1","customerName":"C","totalAmount":5}`))
		if err != domain.ErrMissingContact {
			t.Fatalf("expected ErrMissingContact, got %v", err)
		}
	})

	t.Run("unknown channel", func(t *testing.T) {
		if _, err := domain.Decode("fax", []byte(`{}`)); err != domain.ErrUnknownChannel {
			t.Fatalf("expected ErrUnknownChannel, got %v", err)
		}
	})
}

func TestStamp(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := &domain.OutForDelivery{OrderID: "ORD-1", CustomerPhone: "+1"}

	stamped := base.Stamp(7, at).(*domain.OutForDelivery)
	if stamped.OrderID != "ORD-1-7" {
		t.Fatalf("expected suffixed order id, got %q", stamped.OrderID)
	}
	if stamped.Timestamp == nil || !stamped.Timestamp.Equal(at) {
		t.Fatalf("expected timestamp %v, got %v", at, stamped.Timestamp)
	}
	if base.OrderID != "ORD-1" || base.Timestamp != nil {
		t.Fatal("Stamp must not modify the receiver")
	}

	sms := (&domain.GenericSMS{To: "+1", Message: "hi"}).Stamp(3, at).(*domain.GenericSMS)
	if sms.To != "+1" {
		t.Fatalf("generic SMS destination must be unchanged, got %q", sms.To)
	}
}

func TestSampleMessagesAreValid(t *testing.T) {
	for _, ch := range domain.Channels() {
		msg, err := domain.SampleMessage(ch, time.Now())
		if err != nil {
			t.Fatalf("%s: unexpected error %v", ch, err)
		}
		if msg.Channel() != ch {
			t.Fatalf("%s: sample reports channel %s", ch, msg.Channel())
		}
		if err := msg.Validate(); err != nil {
			t.Fatalf("%s: sample failed validation: %v", ch, err)
		}
	}
}

func TestEnvelope(t *testing.T) {
	env := domain.NewEnvelope(&domain.GenericSMS{To: "+1", Message: "hi"})
	if env.Attempt != 0 {
		t.Fatalf("expected attempt 0, got %d", env.Attempt)
	}
	for i := 0; i < domain.MaxRetries; i++ {
		if env.Exhausted(domain.MaxRetries) {
			t.Fatalf("attempt %d should not be exhausted", env.Attempt)
		}
		env = env.Next()
	}
	if !env.Exhausted(domain.MaxRetries) || env.Attempt != 3 {
		t.Fatalf("expected exhausted at attempt 3, got %d", env.Attempt)
	}
}
