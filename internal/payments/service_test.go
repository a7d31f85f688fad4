package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"eventhub/internal/apiclient"
	"eventhub/internal/shared/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewService(apiclient.New(apiclient.Config{BaseURL: srv.URL}))
}

func TestCreateIntent(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/intents", r.URL.Path)
		var body CreateIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "RES-1", body.ReservationID)
		assert.Equal(t, "USD", body.Currency)
		w.Write([]byte(`{"intentId":"PI-1","status":"CREATED"}`))
	})

	intent, err := svc.CreateIntent(context.Background(), &CreateIntentRequest{
		ReservationID: "RES-1", UserID: 7, Amount: 100, Currency: "USD", PaymentMethod: "CARD", IdempotencyKey: "pi-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "PI-1", intent.IntentID)
	assert.Equal(t, IntentCreated, intent.Status)
}

func TestCreateIntent_MissingReservationNotSent(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := svc.CreateIntent(context.Background(), &CreateIntentRequest{UserID: 7, Amount: 100, IdempotencyKey: "pi-1"})

	assert.True(t, apperr.IsKind(err, apperr.MissingParameter))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCreateIntent_ServerErrorIsIntentFailure(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Reservation is not pending"}`))
	})

	_, err := svc.CreateIntent(context.Background(), &CreateIntentRequest{ReservationID: "RES-1", UserID: 7, Amount: 100, IdempotencyKey: "pi-1"})

	assert.True(t, apperr.IsKind(err, apperr.PaymentIntentFailed))
}

func TestCapture_SendsKeyAsQuery(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/intents/PI-1/capture", r.URL.Path)
		assert.Equal(t, "cap-1", r.URL.Query().Get("idempotencyKey"))
		w.Write([]byte(`{"paymentId":"PAY-1","status":"SUCCEEDED"}`))
	})

	payment, err := svc.Capture(context.Background(), "PI-1", "cap-1")

	require.NoError(t, err)
	assert.True(t, payment.Succeeded())
}

func TestCapture_DeclinedIsReturnedNotErrored(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paymentId":"PAY-2","status":"FAILED","failureReason":"card_declined"}`))
	})

	payment, err := svc.Capture(context.Background(), "PI-1", "cap-1")

	require.NoError(t, err)
	assert.False(t, payment.Succeeded())
	assert.Equal(t, "card_declined", payment.FailureReason)
}

func TestCapture_MissingIntentNotSent(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := svc.Capture(context.Background(), "", "cap-1")

	assert.True(t, apperr.IsKind(err, apperr.MissingParameter))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestPaymentStatus_LegacySuccessValues(t *testing.T) {
	assert.True(t, Payment{Status: "COMPLETED"}.Succeeded())
	assert.True(t, Payment{Status: "CAPTURED"}.Succeeded())
	assert.False(t, Payment{Status: PaymentPending}.Succeeded())
}

func TestSummarize(t *testing.T) {
	history := Summarize(
		[]Payment{
			{PaymentID: "PAY-1", Amount: 100, Status: PaymentSucceeded, CreatedAt: "2026-03-01T10:00:00Z"},
			{PaymentID: "PAY-2", Amount: 50, Status: "COMPLETED", CreatedAt: "2026-03-03T10:00:00"},
			{PaymentID: "PAY-3", Amount: 70, Status: PaymentFailed, CreatedAt: "2026-03-02T10:00:00Z"},
		},
		[]PaymentIntent{
			{IntentID: "PI-9", Amount: 30, Status: IntentCreated, CreatedAt: "2026-03-04T10:00:00Z"},
		},
	)

	assert.Equal(t, 2, history.Completed)
	assert.Equal(t, 1, history.Pending)
	assert.InDelta(t, 150.0, history.TotalPaid, 0.001)
	require.Len(t, history.Transactions, 4)
	assert.Equal(t, "PI-9", history.Transactions[0].ID)
	assert.Equal(t, "PAY-2", history.Transactions[1].ID)
	assert.Equal(t, "PAY-1", history.Transactions[3].ID)
}
