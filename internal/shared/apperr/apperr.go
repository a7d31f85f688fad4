// Package apperr classifies every failure the booking client can surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the user-facing failure class of an error.
type Kind string

const (
	AuthFailure         Kind = "AUTH_FAILURE"
	MissingParameter    Kind = "MISSING_PARAMETER"
	InvalidRequest      Kind = "INVALID_REQUEST"
	NetworkFailure      Kind = "NETWORK_FAILURE"
	ReservationFailed   Kind = "RESERVATION_FAILED"
	PaymentIntentFailed Kind = "PAYMENT_INTENT_FAILED"
	PaymentFailed       Kind = "PAYMENT_FAILED"
	RequestFailed       Kind = "REQUEST_FAILED"
)

var genericMessages = map[Kind]string{
	AuthFailure:         "Authentication failed. Please log in again.",
	MissingParameter:    "A required value is missing.",
	InvalidRequest:      "The request is invalid.",
	NetworkFailure:      "Could not reach the ticketing service. Please try again.",
	ReservationFailed:   "The reservation could not be created.",
	PaymentIntentFailed: "The payment could not be started.",
	PaymentFailed:       "The payment did not go through.",
	RequestFailed:       "The request failed.",
}

// Error is a classified failure. Message is safe to show to an end user.
type Error struct {
	Kind      Kind
	Op        string
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = genericMessages[e.Kind]
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text shown to the end user.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if msg, ok := genericMessages[e.Kind]; ok {
		return msg
	}
	return "Something went wrong."
}

// New builds a classified error with an explicit message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Missing reports a chained identifier that was never received.
func Missing(op, param string) *Error {
	return &Error{
		Kind:    MissingParameter,
		Op:      op,
		Message: fmt.Sprintf("%s is required", param),
	}
}

// Network wraps a transport failure.
func Network(op string, err error) *Error {
	return &Error{
		Kind:      NetworkFailure,
		Op:        op,
		Message:   genericMessages[NetworkFailure],
		Retryable: true,
		Err:       err,
	}
}

// FromStatus classifies a non-2xx backend response. A 401 is always an
// AuthFailure regardless of the kind the caller asked for.
func FromStatus(kind Kind, op string, status int, serverMessage string) *Error {
	if status == http.StatusUnauthorized {
		kind = AuthFailure
	}
	return &Error{
		Kind:      kind,
		Op:        op,
		Status:    status,
		Message:   serverMessage,
		Retryable: status >= 500 || status == http.StatusTooManyRequests,
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or RequestFailed for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return RequestFailed
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// Reclassify returns a copy of err under a new kind, keeping its detail.
// Auth failures keep their kind so session invalidation stays visible.
func Reclassify(err error, kind Kind, op string) *Error {
	e, ok := As(err)
	if !ok {
		return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
	}
	if e.Kind == AuthFailure || e.Kind == MissingParameter || e.Kind == InvalidRequest {
		return e
	}
	out := *e
	out.Kind = kind
	out.Op = op
	if e.Kind == NetworkFailure {
		out.Message = genericMessages[NetworkFailure]
	}
	out.Err = err
	return &out
}

// Join surfaces several failures of one logical step as a single error whose
// message is the last failure's detail. The kind of a trailing auth failure
// wins so callers still see the session drop.
func Join(kind Kind, op string, errs ...error) *Error {
	var last error
	for _, err := range errs {
		if err != nil {
			last = err
		}
	}
	if last == nil {
		return New(kind, op, "")
	}
	out := *Reclassify(last, kind, op)
	if out.Kind != AuthFailure {
		out.Kind = kind
		out.Op = op
	}
	out.Err = errors.Join(errs...)
	return &out
}
