package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SampleMessage builds a realistic test payload for ch. Order ids and
// tracking numbers are random so repeated runs do not collide.
func SampleMessage(ch Channel, now time.Time) (Message, error) {
	switch ch {
	case ChannelOrderConfirmed:
		return &OrderConfirmation{
			OrderID:       "ORD-" + randomCode(8),
			CustomerName:  "John Doe",
			CustomerEmail: "john.doe@example.com",
			CustomerPhone: "+1234567890",
			TotalAmount:   109.97,
			Items: []OrderItem{
				{Name: "Chocolate Fudge Cake", Quantity: 2, Price: 29.99},
				{Name: "Red Velvet Cake", Quantity: 1, Price: 49.99},
			},
			OrderDate:         now.UTC().Format(time.RFC3339),
			EstimatedDelivery: now.Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339),
		}, nil
	case ChannelOrderConfirmEmail:
		return &EmailOnlyOrder{
			OrderID:       "ORD-" + randomCode(8),
			CustomerName:  "Masha",
			CustomerEmail: "masha@example.com",
			TotalAmount:   149.99,
			Items:         []OrderItem{{Name: "Wedding Tier Cake", Quantity: 1, Price: 149.99}},
			Status:        "Pending",
		}, nil
	case ChannelOrderConfirmSMS:
		return &SMSOnlyOrder{
			OrderID:       "ORD-" + randomCode(8),
			CustomerName:  "Bob Wilson",
			CustomerPhone: "+1987654321",
			TotalAmount:   75.50,
			Items:         []OrderItem{{Name: "Cupcake Box", Quantity: 3, Price: 25.17}},
		}, nil
	case ChannelOutForDelivery:
		return &OutForDelivery{
			OrderID:           "ORD-" + randomCode(8),
			CustomerName:      "Alice Johnson",
			CustomerPhone:     "+1555123456",
			TrackingNumber:    "TRK-" + randomCode(10),
			EstimatedDelivery: now.Add(24 * time.Hour).UTC().Format(time.RFC3339),
			Carrier:           "FastShip Express",
		}, nil
	case ChannelGenericSMS:
		return &GenericSMS{
			To:      "+1444555666",
			Message: "This is a test SMS notification sent at " + now.Format(time.RFC1123),
			From:    "CakeShop",
		}, nil
	}
	return nil, ErrUnknownChannel
}

func randomCode(n int) string {
	s := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
