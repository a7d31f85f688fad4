package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"eventhub/internal/apiclient"
	"eventhub/internal/shared/apperr"
)

// Service is a typed wrapper over the payment endpoints. Nothing here is
// retried: capture in particular must only be repeated by the caller with
// an explicit idempotency key.
type Service interface {
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	Capture(ctx context.Context, intentID, idempotencyKey string) (*Payment, error)
	ListPayments(ctx context.Context, userID int64) ([]Payment, error)
	ListIntents(ctx context.Context, userID int64) ([]PaymentIntent, error)
}

type service struct {
	api apiclient.Doer
}

func NewService(api apiclient.Doer) Service {
	return &service{api: api}
}

func (s *service) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*PaymentIntent, error) {
	if req.ReservationID == "" {
		return nil, apperr.Missing("create payment intent", "reservationId")
	}
	var intent PaymentIntent
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "create payment intent",
		Method: http.MethodPost,
		Path:   "/payments/intents",
		Body:   req,
		Kind:   apperr.PaymentIntentFailed,
	}, &intent)
	if err != nil {
		return nil, err
	}
	if intent.IntentID == "" {
		return nil, apperr.New(apperr.PaymentIntentFailed, "create payment intent", "The server did not return a payment intent id.")
	}
	return &intent, nil
}

func (s *service) GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	if intentID == "" {
		return nil, apperr.Missing("get payment intent", "intentId")
	}
	var intent PaymentIntent
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "get payment intent",
		Method: http.MethodGet,
		Path:   "/payments/intents/" + url.PathEscape(intentID),
	}, &intent)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Capture finalizes the intent. The returned payment may carry a non-success
// status; interpreting it is up to the caller.
func (s *service) Capture(ctx context.Context, intentID, idempotencyKey string) (*Payment, error) {
	if intentID == "" {
		return nil, apperr.Missing("capture payment", "intentId")
	}
	var query url.Values
	if idempotencyKey != "" {
		query = url.Values{"idempotencyKey": {idempotencyKey}}
	}
	var payment Payment
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "capture payment",
		Method: http.MethodPost,
		Path:   "/payments/intents/" + url.PathEscape(intentID) + "/capture",
		Query:  query,
		Kind:   apperr.PaymentFailed,
	}, &payment)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *service) ListPayments(ctx context.Context, userID int64) ([]Payment, error) {
	if userID == 0 {
		return nil, apperr.Missing("list payments", "userId")
	}
	var list []Payment
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "list payments",
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/payments/user/%d", userID),
	}, &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *service) ListIntents(ctx context.Context, userID int64) ([]PaymentIntent, error) {
	if userID == 0 {
		return nil, apperr.Missing("list payment intents", "userId")
	}
	var list []PaymentIntent
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "list payment intents",
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/payments/intents/user/%d", userID),
	}, &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}
