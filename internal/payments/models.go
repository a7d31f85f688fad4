package payments

type IntentStatus string

const (
	IntentCreated    IntentStatus = "CREATED"
	IntentProcessing IntentStatus = "PROCESSING"
	IntentSucceeded  IntentStatus = "SUCCEEDED"
	IntentFailed     IntentStatus = "FAILED"
	IntentCancelled  IntentStatus = "CANCELLED"
	IntentExpired    IntentStatus = "EXPIRED"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"

	// reported by older backends
	paymentCompleted PaymentStatus = "COMPLETED"
	paymentCaptured  PaymentStatus = "CAPTURED"
)

// IsSuccess reports a terminal successful capture
func (s PaymentStatus) IsSuccess() bool {
	switch s {
	case PaymentSucceeded, paymentCompleted, paymentCaptured:
		return true
	}
	return false
}

// IsPending reports a status that has not settled yet
func (s PaymentStatus) IsPending() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentStatus(IntentCreated):
		return true
	}
	return false
}

// PaymentIntent is a payment about to happen for one reservation
type PaymentIntent struct {
	ID             int64        `json:"id,omitempty"`
	IntentID       string       `json:"intentId"`
	ReservationID  string       `json:"reservationId"`
	UserID         int64        `json:"userId"`
	Amount         float64      `json:"amount"`
	Currency       string       `json:"currency"`
	Status         IntentStatus `json:"status"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	PaymentMethod  string       `json:"paymentMethod,omitempty"`
	Description    string       `json:"description,omitempty"`
	ExpiresAt      string       `json:"expiresAt,omitempty"`
	CreatedAt      string       `json:"createdAt,omitempty"`
	UpdatedAt      string       `json:"updatedAt,omitempty"`
}

// Payment is the terminal record of a capture
type Payment struct {
	ID                int64         `json:"id,omitempty"`
	PaymentID         string        `json:"paymentId"`
	IntentID          string        `json:"intentId,omitempty"`
	ReservationID     string        `json:"reservationId,omitempty"`
	UserID            int64         `json:"userId,omitempty"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency,omitempty"`
	Status            PaymentStatus `json:"status"`
	PaymentMethod     string        `json:"paymentMethod,omitempty"`
	ProviderReference string        `json:"providerReference,omitempty"`
	FailureReason     string        `json:"failureReason,omitempty"`
	CapturedAt        string        `json:"capturedAt,omitempty"`
	CreatedAt         string        `json:"createdAt,omitempty"`
	UpdatedAt         string        `json:"updatedAt,omitempty"`
}

// Succeeded reports whether the capture produced a confirmed payment
func (p Payment) Succeeded() bool {
	return p.Status.IsSuccess()
}
