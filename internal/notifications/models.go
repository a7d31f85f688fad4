package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransitionEvent is published every time a booking attempt changes state
type TransitionEvent struct {
	ID            uuid.UUID `json:"id"`
	AttemptID     string    `json:"attempt_id"`
	SessionID     string    `json:"session_id,omitempty"`
	UserID        int64     `json:"user_id,omitempty"`
	EventID       int64     `json:"event_id,omitempty"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ReservationID string    `json:"reservation_id,omitempty"`
	IntentID      string    `json:"intent_id,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewTransitionEvent stamps a fresh id and timestamp
func NewTransitionEvent(attemptID, from, to string) *TransitionEvent {
	return &TransitionEvent{
		ID:         uuid.New(),
		AttemptID:  attemptID,
		From:       from,
		To:         to,
		OccurredAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the attempt ended with this transition
func (e *TransitionEvent) IsTerminal() bool {
	return e.To == "Paid" || e.To == "Failed"
}

func (e *TransitionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransitionEventFromJSON decodes a published transition
func TransitionEventFromJSON(data []byte) (*TransitionEvent, error) {
	var e TransitionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
