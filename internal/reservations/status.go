package reservations

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsValid checks if the reservation status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanBeConfirmed checks if a reservation with this status can be confirmed
func (s Status) CanBeConfirmed() bool {
	return s == StatusPending
}

// CanBeCancelled checks if a reservation with this status can be cancelled
func (s Status) CanBeCancelled() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsActive checks if the reservation still holds inventory
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}
