package domain

import "time"

// Envelope is a message in flight together with its delivery attempt counter.
// Attempt starts at 0 on first publish and is incremented on every logical
// retry. It travels in the RetryCountHeader, never in process memory, so it
// survives consumer restarts.
type Envelope struct {
	Attempt int
	Message Message
}

// NewEnvelope wraps a freshly published message.
func NewEnvelope(m Message) Envelope {
	return Envelope{Message: m}
}

// Next returns the envelope for the following retry.
func (e Envelope) Next() Envelope {
	return Envelope{Attempt: e.Attempt + 1, Message: e.Message}
}

// Exhausted reports whether no logical retries remain.
func (e Envelope) Exhausted(maxRetries int) bool {
	return e.Attempt >= maxRetries
}

// OutcomeStatus is the terminal state of a delivered message.
type OutcomeStatus string

const (
	OutcomeAcked        OutcomeStatus = "acked"
	OutcomeDeadLettered OutcomeStatus = "dead_lettered"
)

func (s OutcomeStatus) IsValid() bool {
	return s == OutcomeAcked || s == OutcomeDeadLettered
}

// Outcome records how a message left its queue. Individual attempts are not
// recorded; Attempts is the counter value at the terminal step.
type Outcome struct {
	ID         string        `json:"id"`
	MessageID  string        `json:"message_id"`
	Queue      string        `json:"queue"`
	Reference  string        `json:"reference"`
	Status     OutcomeStatus `json:"status"`
	Attempts   int           `json:"attempts"`
	LastError  *string       `json:"last_error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// OutcomeFilter holds query parameters for listing outcomes.
type OutcomeFilter struct {
	Status *OutcomeStatus
	Queue  *string
	Limit  int
}
