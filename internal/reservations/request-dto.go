package reservations

// CreateRequest is the body of a reservation create call
type CreateRequest struct {
	UserID         int64  `json:"userId" validate:"required"`
	EventID        int64  `json:"eventId" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gte=1"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required"`
}
