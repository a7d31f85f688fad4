package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"eventhub/internal/shared/apperr"
	"eventhub/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ticketingAPI is a fake backend under the default /v1 prefix
type ticketingAPI struct {
	mu          sync.Mutex
	captureKeys []string
	capture     http.HandlerFunc
}

func (b *ticketingAPI) captures() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.captureKeys...)
}

func (b *ticketingAPI) start(t *testing.T) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"T1","userId":7,"email":"a@b.com","roles":["USER"]}`))
	})
	mux.HandleFunc("GET /v1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"id":42,"title":"Gig","city":"Pune","status":"PUBLISHED","availableCapacity":3,"price":50}],"totalPages":1,"totalElements":1}`))
	})
	mux.HandleFunc("POST /v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"reservationId":"RES-1","eventId":42,"quantity":2,"status":"PENDING","totalPrice":100.00}`))
	})
	mux.HandleFunc("GET /v1/reservations/user/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"reservationId":"RES-1","eventId":42,"quantity":2,"status":"CONFIRMED","totalPrice":100.00}]`))
	})
	mux.HandleFunc("POST /v1/payments/intents", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"intentId":"PI-1","reservationId":"RES-1","status":"CREATED"}`))
	})
	mux.HandleFunc("POST /v1/payments/intents/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.captureKeys = append(b.captureKeys, r.URL.Query().Get("idempotencyKey"))
		b.mu.Unlock()
		if b.capture != nil {
			b.capture(w, r)
			return
		}
		w.Write([]byte(`{"paymentId":"PAY-1","status":"SUCCEEDED"}`))
	})
	mux.HandleFunc("GET /v1/payments/user/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"paymentId":"PAY-1","reservationId":"RES-1","amount":100,"currency":"USD","status":"SUCCEEDED","createdAt":"2026-01-01T10:00:00Z"}]`))
	})
	mux.HandleFunc("GET /v1/payments/intents/user/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("API_VERSION_PREFIX", "/v1")
	t.Setenv("API_TIMEOUT", "300ms")
	t.Setenv("RESERVATION_FALLBACK", "false")
	t.Setenv("NOTIFY_BACKEND", "none")
	t.Setenv("JOURNAL_DB_ENABLED", "false")
}

var credentials = []string{"-email", "a@b.com", "-password", "pw"}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags("book", []string{"-email", "a@b.com", "-password", "pw", "-event", "42", "-quantity", "3"}, &stderr)

	require.NoError(t, err)
	assert.Equal(t, "a@b.com", opts.email)
	assert.Equal(t, int64(42), opts.eventID)
	assert.Equal(t, 3, opts.quantity)
	assert.Empty(t, opts.currency)
}

func TestParseFlags_RejectsUnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags("book", []string{"-bogus"}, &stderr)
	assert.Error(t, err)
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: bookctl")
}

func TestRunBook_Paid(t *testing.T) {
	api := &ticketingAPI{}
	api.start(t)

	var stdout, stderr bytes.Buffer
	code := run(append([]string{"book", "-event", "42", "-quantity", "2"}, credentials...), &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), ": Paid")
	assert.Contains(t, stdout.String(), "payment: PAY-1 SUCCEEDED 100.00 USD")
	assert.Len(t, api.captures(), 1)
}

func TestRunBook_UnknownCaptureIsNotResent(t *testing.T) {
	api := &ticketingAPI{}
	api.capture = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	api.start(t)

	var stdout, stderr bytes.Buffer
	code := run(append([]string{"book", "-event", "42", "-quantity", "2", "-json"}, credentials...), &stdout, &stderr)

	assert.Equal(t, 1, code)
	keys := api.captures()
	require.Len(t, keys, 1)

	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &snap))
	assert.Equal(t, workflow.StateCaptureRequested, snap.State)
	assert.Equal(t, keys[0], snap.CaptureKey)
	assert.Contains(t, stderr.String(), "capture outcome unknown (key "+keys[0]+")")
}

func TestRunBook_MissingCredentials(t *testing.T) {
	api := &ticketingAPI{}
	api.start(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"book", "-event", "42", "-email", "", "-password", ""}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "[MISSING_PARAMETER]")
	assert.Empty(t, api.captures())
}

func TestRunEvents(t *testing.T) {
	api := &ticketingAPI{}
	api.start(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"events", "-city", "Pune"}, &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Gig")
	assert.Contains(t, stdout.String(), "1 of 1 events")
}

func TestRunHistory(t *testing.T) {
	api := &ticketingAPI{}
	api.start(t)

	var stdout, stderr bytes.Buffer
	code := run(append([]string{"history"}, credentials...), &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "RES-1")
	assert.Contains(t, stdout.String(), "PAY-1")
	assert.Contains(t, stdout.String(), "completed: 1  pending: 0  total paid: 100.00")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(workflow.Snapshot{State: workflow.StatePaid}))
	assert.Equal(t, 1, exitCode(workflow.Snapshot{State: workflow.StateFailed}))
	assert.Equal(t, 1, exitCode(workflow.Snapshot{State: workflow.StateCaptureRequested}))
}

func TestPrintError_UsesUserMessage(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, apperr.New(apperr.PaymentFailed, "capture", "Payment failed: card_declined"))
	assert.Equal(t, "error [PAYMENT_FAILED]: Payment failed: card_declined\n", buf.String())

	buf.Reset()
	printError(&buf, errors.New("boom"))
	assert.Equal(t, "error: boom\n", buf.String())
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, workflow.Snapshot{
		ID:            "att-1",
		State:         workflow.StatePaid,
		ReservationID: "RES-1",
		PaymentID:     "PAY-1",
		PaymentStatus: "SUCCEEDED",
		Amount:        100,
		Currency:      "USD",
	})

	out := buf.String()
	assert.Contains(t, out, "attempt att-1: Paid")
	assert.Contains(t, out, "payment: PAY-1 SUCCEEDED 100.00 USD")
}
