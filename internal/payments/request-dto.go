package payments

// CreateIntentRequest is the body of a payment intent create call
type CreateIntentRequest struct {
	ReservationID  string  `json:"reservationId" validate:"required"`
	UserID         int64   `json:"userId" validate:"required"`
	Amount         float64 `json:"amount" validate:"gt=0"`
	Currency       string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaymentMethod  string  `json:"paymentMethod,omitempty"`
	Description    string  `json:"description,omitempty" validate:"max=500"`
	IdempotencyKey string  `json:"idempotencyKey" validate:"required"`
}
