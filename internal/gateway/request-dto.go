package gateway

// BeginAttemptRequest starts a booking attempt
type BeginAttemptRequest struct {
	EventID int64 `json:"event_id"`
}

// ReserveRequest is the reservation step. The user always comes from the
// session.
type ReserveRequest struct {
	EventID  int64 `json:"event_id"`
	Quantity int   `json:"quantity" binding:"required,gte=1"`
}

// IntentRequest is the payment intent step
type IntentRequest struct {
	Amount      float64 `json:"amount" binding:"omitempty,gt=0"`
	Currency    string  `json:"currency" binding:"omitempty,len=3"`
	Method      string  `json:"method"`
	Description string  `json:"description" binding:"max=500"`
}

// CaptureRequest is the capture step. Reinitiate is set only when the user
// pressed "pay again".
type CaptureRequest struct {
	Reinitiate bool `json:"reinitiate"`
}

// BookRequest runs a whole attempt in one call
type BookRequest struct {
	EventID     int64   `json:"event_id" binding:"required"`
	Quantity    int     `json:"quantity" binding:"required,gte=1"`
	Amount      float64 `json:"amount" binding:"omitempty,gt=0"`
	Currency    string  `json:"currency" binding:"omitempty,len=3"`
	Method      string  `json:"method"`
	Description string  `json:"description" binding:"max=500"`
}

// SessionResponse carries a newly issued gateway session id
type SessionResponse struct {
	SessionID string `json:"session_id"`
}
