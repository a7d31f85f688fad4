package reservations

import "strconv"

// Reservation is the client-side projection of a backend reservation
type Reservation struct {
	ID             int64             `json:"id,omitempty"`
	ReservationID  string            `json:"reservationId,omitempty"`
	UserID         int64             `json:"userId"`
	EventID        int64             `json:"eventId"`
	Quantity       int               `json:"quantity"`
	TotalPrice     float64           `json:"totalPrice"`
	Status         Status            `json:"status"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	CreatedAt      string            `json:"createdAt,omitempty"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
	ExpiresAt      string            `json:"expiresAt,omitempty"`
	Items          []ReservationItem `json:"items,omitempty"`
}

// ReservationItem is one ticket line of a reservation
type ReservationItem struct {
	ID         int64   `json:"id"`
	TicketType string  `json:"ticketType"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
	CreatedAt  string  `json:"createdAt,omitempty"`
}

// Ref is the identifier used to address the reservation in later calls.
// Backends answer with reservationId, numeric id, or both.
func (r Reservation) Ref() string {
	if r.ReservationID != "" {
		return r.ReservationID
	}
	if r.ID != 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return ""
}
