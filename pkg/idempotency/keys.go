package idempotency

import (
	"fmt"

	"github.com/google/uuid"
)

// Key prefixes for the mutating calls of a booking attempt
const (
	PrefixReservation   = "res"
	PrefixPaymentIntent = "pi"
	PrefixCapture       = "cap"
)

// Generator mints idempotency keys. Each call must return a value never
// returned before.
type Generator interface {
	New(prefix string) string
}

// UUIDGenerator generates "<prefix>-<uuid v4>" keys
type UUIDGenerator struct{}

func (UUIDGenerator) New(prefix string) string {
	return GeneratePrefixedUUID(prefix)
}

// GeneratePrefixedUUID returns a random uuid prefixed with prefix
func GeneratePrefixedUUID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// NewCorrelationID returns a request correlation id
func NewCorrelationID() string {
	return uuid.New().String()
}

// NewSessionID returns a gateway session id, a bare UUID
func NewSessionID() string {
	return uuid.New().String()
}

// NewAttemptID returns a booking attempt id
func NewAttemptID() string {
	return GeneratePrefixedUUID("att")
}
