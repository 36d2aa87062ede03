package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrUnknownChannel    = errors.New("unknown channel: must be order, email, sms, delivery, or generic")
	ErrMalformedPayload  = errors.New("payload is not a valid JSON object for this channel")
	ErrMissingOrderID    = errors.New("orderId is required")
	ErrMissingCustomer   = errors.New("customerName is required")
	ErrMissingContact    = errors.New("at least one of customerEmail or customerPhone is required")
	ErrMissingEmail      = errors.New("customerEmail is required")
	ErrMissingPhone      = errors.New("customerPhone is required")
	ErrInvalidTotal      = errors.New("totalAmount must be greater than zero")
	ErrMissingRecipient  = errors.New("to is required")
	ErrMissingSMSMessage = errors.New("message is required")
	ErrInvalidCount      = errors.New("count must be between 1 and 1000")
	ErrBulkTooLarge      = errors.New("count exceeds what can be published before the response deadline")
	ErrInvalidStatus     = errors.New("status must be acked or dead_lettered")
	ErrUnknownQueue      = errors.New("unknown queue")
	ErrInvalidLimit      = errors.New("limit must be between 1 and 500")
)

// IsValidationError reports whether err is one of the payload validation
// sentinels. Such a message can never be delivered, so it is not retried.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrMalformedPayload, ErrMissingOrderID, ErrMissingCustomer,
		ErrMissingContact, ErrMissingEmail, ErrMissingPhone,
		ErrInvalidTotal, ErrMissingRecipient, ErrMissingSMSMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
