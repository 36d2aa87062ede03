package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is one notification payload. The concrete type decides the channel,
// and therefore the queue, the message is published to.
type Message interface {
	Channel() Channel
	Validate() error
	// Stamp returns a copy with the order id suffixed by "-seq" (when the
	// shape has one) and the timestamp set to at. Used by bulk publishing.
	Stamp(seq int, at time.Time) Message
}

// Amount is a money value. Producers emit it either as a JSON number or as a
// numeric string ("29.99"); both decode to the same value.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// OrderItem is one line of an order.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Amount `json:"price"`
}

// OrderConfirmation triggers the combined email + SMS confirmation.
type OrderConfirmation struct {
	OrderID           string      `json:"orderId"`
	CustomerName      string      `json:"customerName"`
	CustomerEmail     string      `json:"customerEmail,omitempty"`
	CustomerPhone     string      `json:"customerPhone,omitempty"`
	TotalAmount       Amount      `json:"totalAmount"`
	Items             []OrderItem `json:"items"`
	OrderDate         string      `json:"orderDate,omitempty"`
	EstimatedDelivery string      `json:"estimatedDelivery,omitempty"`
	Timestamp         *time.Time  `json:"timestamp,omitempty"`
}

func (m *OrderConfirmation) Channel() Channel { return ChannelOrderConfirmed }

func (m *OrderConfirmation) Validate() error {
	if m.CustomerEmail == "" && m.CustomerPhone == "" {
		return ErrMissingContact
	}
	return validateOrder(m.OrderID, m.CustomerName, m.TotalAmount)
}

func (m *OrderConfirmation) Stamp(seq int, at time.Time) Message {
	c := *m
	c.OrderID = fmt.Sprintf("%s-%d", m.OrderID, seq)
	c.Timestamp = &at
	return &c
}

// EmailOnlyOrder triggers the email-only confirmation.
type EmailOnlyOrder struct {
	OrderID       string      `json:"orderId"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail"`
	TotalAmount   Amount      `json:"totalAmount"`
	Items         []OrderItem `json:"items"`
	Status        string      `json:"status,omitempty"`
	Timestamp     *time.Time  `json:"timestamp,omitempty"`
}

func (m *EmailOnlyOrder) Channel() Channel { return ChannelOrderConfirmEmail }

func (m *EmailOnlyOrder) Validate() error {
	if m.CustomerEmail == "" {
		return ErrMissingEmail
	}
	return validateOrder(m.OrderID, m.CustomerName, m.TotalAmount)
}

func (m *EmailOnlyOrder) Stamp(seq int, at time.Time) Message {
	c := *m
	c.OrderID = fmt.Sprintf("%s-%d", m.OrderID, seq)
	c.Timestamp = &at
	return &c
}

// SMSOnlyOrder triggers the SMS-only confirmation.
type SMSOnlyOrder struct {
	OrderID       string      `json:"orderId"`
	CustomerName  string      `json:"customerName"`
	CustomerPhone string      `json:"customerPhone"`
	TotalAmount   Amount      `json:"totalAmount"`
	Items         []OrderItem `json:"items"`
	Timestamp     *time.Time  `json:"timestamp,omitempty"`
}

func (m *SMSOnlyOrder) Channel() Channel { return ChannelOrderConfirmSMS }

func (m *SMSOnlyOrder) Validate() error {
	if m.CustomerPhone == "" {
		return ErrMissingPhone
	}
	return validateOrder(m.OrderID, m.CustomerName, m.TotalAmount)
}

func (m *SMSOnlyOrder) Stamp(seq int, at time.Time) Message {
	c := *m
	c.OrderID = fmt.Sprintf("%s-%d", m.OrderID, seq)
	c.Timestamp = &at
	return &c
}

// OutForDelivery is the SMS sent when an order leaves with a carrier.
type OutForDelivery struct {
	OrderID           string     `json:"orderId"`
	CustomerName      string     `json:"customerName"`
	CustomerPhone     string     `json:"customerPhone"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	EstimatedDelivery string     `json:"estimatedDelivery,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
}

func (m *OutForDelivery) Channel() Channel { return ChannelOutForDelivery }

func (m *OutForDelivery) Validate() error {
	if m.OrderID == "" {
		return ErrMissingOrderID
	}
	if m.CustomerPhone == "" {
		return ErrMissingPhone
	}
	return nil
}

func (m *OutForDelivery) Stamp(seq int, at time.Time) Message {
	c := *m
	c.OrderID = fmt.Sprintf("%s-%d", m.OrderID, seq)
	c.Timestamp = &at
	return &c
}

// GenericSMS is a free-form text message.
type GenericSMS struct {
	To        string     `json:"to"`
	Message   string     `json:"message"`
	From      string     `json:"from,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (m *GenericSMS) Channel() Channel { return ChannelGenericSMS }

func (m *GenericSMS) Validate() error {
	if m.To == "" {
		return ErrMissingRecipient
	}
	if m.Message == "" {
		return ErrMissingSMSMessage
	}
	return nil
}

func (m *GenericSMS) Stamp(_ int, at time.Time) Message {
	c := *m
	c.Timestamp = &at
	return &c
}

func validateOrder(orderID, customer string, total Amount) error {
	if orderID == "" {
		return ErrMissingOrderID
	}
	if customer == "" {
		return ErrMissingCustomer
	}
	if total <= 0 {
		return ErrInvalidTotal
	}
	return nil
}

// NewMessage returns an empty message of the shape bound to ch.
func NewMessage(ch Channel) (Message, error) {
	switch ch {
	case ChannelOrderConfirmed:
		return &OrderConfirmation{}, nil
	case ChannelOrderConfirmEmail:
		return &EmailOnlyOrder{}, nil
	case ChannelOrderConfirmSMS:
		return &SMSOnlyOrder{}, nil
	case ChannelOutForDelivery:
		return &OutForDelivery{}, nil
	case ChannelGenericSMS:
		return &GenericSMS{}, nil
	}
	return nil, ErrUnknownChannel
}

// Decode parses body as the shape bound to ch and validates it.
// Any failure wraps one of the validation sentinels, so callers can treat it
// as permanent.
func Decode(ch Channel, body []byte) (Message, error) {
	msg, err := NewMessage(ch)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedPayload
	}
	if err := json.Unmarshal(trimmed, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Reference returns the order id, or the destination for a generic SMS.
// Used to tag logs and delivery outcomes.
func Reference(m Message) string {
	switch v := m.(type) {
	case *OrderConfirmation:
		return v.OrderID
	case *EmailOnlyOrder:
		return v.OrderID
	case *SMSOnlyOrder:
		return v.OrderID
	case *OutForDelivery:
		return v.OrderID
	case *GenericSMS:
		return v.To
	}
	return ""
}
