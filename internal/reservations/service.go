package reservations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"eventhub/internal/apiclient"
	"eventhub/internal/shared/apperr"
)

// Creator is the one mutating call that may go through a second transport
type Creator interface {
	Create(ctx context.Context, req *CreateRequest) (*Reservation, error)
}

// Service is a typed wrapper over the reservation endpoints. It never
// retries; retry and fallback are decided by the caller.
type Service interface {
	Creator
	Get(ctx context.Context, reservationID string) (*Reservation, error)
	ListByUser(ctx context.Context, userID int64) ([]Reservation, error)
	Confirm(ctx context.Context, reservationID string) (*Reservation, error)
	Cancel(ctx context.Context, reservationID string) (*Reservation, error)
}

type service struct {
	api apiclient.Doer
}

func NewService(api apiclient.Doer) Service {
	return &service{api: api}
}

func (s *service) Create(ctx context.Context, req *CreateRequest) (*Reservation, error) {
	var reservation Reservation
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "create reservation",
		Method: http.MethodPost,
		Path:   "/reservations",
		Body:   req,
		Kind:   apperr.ReservationFailed,
	}, &reservation)
	if err != nil {
		return nil, err
	}
	if reservation.Ref() == "" {
		return nil, apperr.New(apperr.ReservationFailed, "create reservation", "The server did not return a reservation id.")
	}
	return &reservation, nil
}

func (s *service) Get(ctx context.Context, reservationID string) (*Reservation, error) {
	if reservationID == "" {
		return nil, apperr.Missing("get reservation", "reservationId")
	}
	var reservation Reservation
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "get reservation",
		Method: http.MethodGet,
		Path:   "/reservations/" + url.PathEscape(reservationID),
	}, &reservation)
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (s *service) ListByUser(ctx context.Context, userID int64) ([]Reservation, error) {
	if userID == 0 {
		return nil, apperr.Missing("list reservations", "userId")
	}
	var list []Reservation
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "list reservations",
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/reservations/user/%d", userID),
	}, &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *service) Confirm(ctx context.Context, reservationID string) (*Reservation, error) {
	return s.transition(ctx, "confirm reservation", reservationID, "confirm")
}

func (s *service) Cancel(ctx context.Context, reservationID string) (*Reservation, error) {
	return s.transition(ctx, "cancel reservation", reservationID, "cancel")
}

func (s *service) transition(ctx context.Context, op, reservationID, action string) (*Reservation, error) {
	if reservationID == "" {
		return nil, apperr.Missing(op, "reservationId")
	}
	var reservation Reservation
	err := s.api.Do(ctx, apiclient.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   "/reservations/" + url.PathEscape(reservationID) + "/" + action,
		Kind:   apperr.ReservationFailed,
	}, &reservation)
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}
