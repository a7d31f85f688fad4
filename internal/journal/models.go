package journal

import "time"

// AttemptRecord is the persisted view of one booking attempt
type AttemptRecord struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	SessionID      string    `json:"session_id,omitempty" gorm:"index;size:64"`
	UserID         int64     `json:"user_id" gorm:"index"`
	EventID        int64     `json:"event_id" gorm:"index"`
	Quantity       int       `json:"quantity"`
	State          string    `json:"state" gorm:"size:32;not null"`
	ReservationID  string    `json:"reservation_id,omitempty" gorm:"size:64"`
	IntentID       string    `json:"intent_id,omitempty" gorm:"size:64"`
	PaymentID      string    `json:"payment_id,omitempty" gorm:"size:64"`
	ReservationKey string    `json:"reservation_key,omitempty" gorm:"size:100"`
	IntentKey      string    `json:"intent_key,omitempty" gorm:"size:100"`
	CaptureKey     string    `json:"capture_key,omitempty" gorm:"size:100"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency,omitempty" gorm:"size:3"`
	ErrorKind      string    `json:"error_kind,omitempty" gorm:"size:32"`
	LastError      string    `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Transitions []TransitionRecord `json:"transitions,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE;"`
}

// TableName specifies the table name for GORM
func (AttemptRecord) TableName() string {
	return "booking_attempts"
}

// TransitionRecord is one state change of an attempt
type TransitionRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AttemptID string    `json:"attempt_id" gorm:"index;size:64;not null"`
	FromState string    `json:"from_state" gorm:"size:32"`
	ToState   string    `json:"to_state" gorm:"size:32;not null"`
	Detail    string    `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (TransitionRecord) TableName() string {
	return "booking_attempt_transitions"
}
