package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"eventhub/internal/journal"
	"eventhub/internal/payments"
	"eventhub/internal/reservations"
	"eventhub/internal/shared/apperr"
	"eventhub/pkg/idempotency"
)

// ReserveInput overrides the attempt's event and the session user. Zero
// values fall back to the attempt and session state.
type ReserveInput struct {
	EventID  int64
	UserID   int64
	Quantity int
}

// IntentInput describes the payment to start. Amount defaults to the
// reservation total.
type IntentInput struct {
	Amount      float64
	Currency    string
	Method      string
	Description string
}

// CaptureInput controls the capture key. Reinitiate is set only when the
// user explicitly starts the payment again.
type CaptureInput struct {
	Reinitiate bool
}

// BookInput is the input of a one shot booking
type BookInput struct {
	EventID     int64
	UserID      int64
	Quantity    int
	Amount      float64
	Currency    string
	Method      string
	Description string
}

// Transition is one recorded state change
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is a read-only copy of an attempt
type Snapshot struct {
	ID                string       `json:"id"`
	State             State        `json:"state"`
	EventID           int64        `json:"eventId,omitempty"`
	UserID            int64        `json:"userId,omitempty"`
	Quantity          int          `json:"quantity,omitempty"`
	ReservationID     string       `json:"reservationId,omitempty"`
	ReservationStatus string       `json:"reservationStatus,omitempty"`
	IntentID          string       `json:"intentId,omitempty"`
	IntentStatus      string       `json:"intentStatus,omitempty"`
	PaymentID         string       `json:"paymentId,omitempty"`
	PaymentStatus     string       `json:"paymentStatus,omitempty"`
	CaptureKey        string       `json:"captureKey,omitempty"`
	Amount            float64      `json:"amount,omitempty"`
	Currency          string       `json:"currency,omitempty"`
	ErrorKind         apperr.Kind  `json:"errorKind,omitempty"`
	Message           string       `json:"message,omitempty"`
	InFlight          bool         `json:"inFlight"`
	Abandoned         bool         `json:"abandoned"`
	CreatedAt         time.Time    `json:"createdAt"`
	Transitions       []Transition `json:"transitions"`
}

// Attempt is one traversal of the workflow from Browsing to Paid or Failed.
// Only one step runs at a time.
type Attempt struct {
	client *Client

	mu             sync.Mutex
	id             string
	state          State
	eventID        int64
	userID         int64
	quantity       int
	reservation    *reservations.Reservation
	intent         *payments.PaymentIntent
	payment        *payments.Payment
	reservationKey string
	intentKey      string
	captureKey     string
	amount         float64
	currency       string
	lastErr        error
	inFlight       bool
	abandoned      bool
	createdAt      time.Time
	transitions    []Transition

	// emissions leave in transition order even when a later step finishes
	// writing first
	emitMu  sync.Mutex
	emitted int
	queued  map[int]emission
}

func (a *Attempt) ID() string {
	return a.id
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Reserve creates the reservation. Quantity must be at least one and both
// the event and user must resolve, otherwise no request is sent.
func (a *Attempt) Reserve(ctx context.Context, in ReserveInput) (*reservations.Reservation, error) {
	const op = "create reservation"

	if in.Quantity < 1 {
		return nil, apperr.New(apperr.InvalidRequest, op, "Quantity must be at least 1.")
	}
	userID := in.UserID
	if userID == 0 {
		userID = a.client.sessionUserID(ctx)
	}

	a.mu.Lock()
	if err := a.check(op, StateReservationRequested); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	eventID := in.EventID
	if eventID == 0 {
		eventID = a.eventID
	}
	if userID == 0 {
		userID = a.userID
	}
	if eventID == 0 {
		a.mu.Unlock()
		return nil, apperr.Missing(op, "eventId")
	}
	if userID == 0 {
		a.mu.Unlock()
		return nil, apperr.Missing(op, "userId")
	}

	a.inFlight = true
	a.eventID, a.userID, a.quantity = eventID, userID, in.Quantity
	if a.reservationKey == "" {
		a.reservationKey = a.client.keys.New(idempotency.PrefixReservation)
	}
	req := reservations.CreateRequest{
		UserID:         userID,
		EventID:        eventID,
		Quantity:       in.Quantity,
		IdempotencyKey: a.reservationKey,
	}
	em := a.move(StateReservationRequested, "")
	a.mu.Unlock()
	a.emit(ctx, em)

	created, key, err := a.client.createReservation(ctx, a.id, req)

	a.mu.Lock()
	a.inFlight = false
	if a.abandoned {
		a.mu.Unlock()
		return nil, ErrAttemptAbandoned
	}
	if err != nil {
		em := a.fail(err)
		a.mu.Unlock()
		a.emit(ctx, em)
		return nil, err
	}
	a.reservation = created
	a.reservationKey = key
	a.amount = created.TotalPrice
	em = a.move(StateReservationConfirmed, created.Ref())
	a.mu.Unlock()

	a.emit(ctx, em)
	a.client.logger.LogReservationCreated(ctx, a.id, created.Ref(), formatID(eventID))
	return created, nil
}

// CreatePaymentIntent starts the payment for the attempt's reservation with
// a fresh key. It is never retried.
func (a *Attempt) CreatePaymentIntent(ctx context.Context, in IntentInput) (*payments.PaymentIntent, error) {
	const op = "create payment intent"

	a.mu.Lock()
	if err := a.check(op, StateIntentRequested); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	amount := in.Amount
	if amount <= 0 {
		amount = a.reservation.TotalPrice
	}
	if amount <= 0 {
		a.mu.Unlock()
		return nil, apperr.Missing(op, "amount")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = a.client.defaultCurrency
	}
	method := in.Method
	if method == "" {
		method = a.client.defaultMethod
	}

	a.inFlight = true
	a.intentKey = a.client.keys.New(idempotency.PrefixPaymentIntent)
	req := payments.CreateIntentRequest{
		ReservationID:  a.reservation.Ref(),
		UserID:         a.userID,
		Amount:         amount,
		Currency:       currency,
		PaymentMethod:  method,
		Description:    in.Description,
		IdempotencyKey: a.intentKey,
	}
	a.amount, a.currency = amount, currency
	em := a.move(StateIntentRequested, "")
	a.mu.Unlock()
	a.emit(ctx, em)

	intent, err := a.client.payments.CreateIntent(ctx, &req)

	a.mu.Lock()
	a.inFlight = false
	if a.abandoned {
		a.mu.Unlock()
		return nil, ErrAttemptAbandoned
	}
	if err != nil {
		err = apperr.Reclassify(err, apperr.PaymentIntentFailed, op)
		em := a.fail(err)
		a.mu.Unlock()
		a.emit(ctx, em)
		return nil, err
	}
	a.intent = intent
	em = a.move(StateIntentCreated, intent.IntentID)
	a.mu.Unlock()

	a.emit(ctx, em)
	return intent, nil
}

// Capture settles the payment intent. The capture key is minted once and
// reused on every re-issue; only in.Reinitiate mints a new one. When the
// outcome is unknown because the backend could not be reached the attempt
// stays in CaptureRequested so the capture can be re-issued with the same
// key.
func (a *Attempt) Capture(ctx context.Context, in CaptureInput) (*payments.Payment, error) {
	const op = "capture payment"

	a.mu.Lock()
	if err := a.busy(); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	var ems []emission
	switch a.state {
	case StateIntentCreated:
		ems = append(ems, a.move(StateCaptureRequested, ""))
	case StateCaptureRequested:
	default:
		err := a.illegal(op, StateCaptureRequested)
		a.mu.Unlock()
		return nil, err
	}
	if a.captureKey == "" || in.Reinitiate {
		a.captureKey = a.client.keys.New(idempotency.PrefixCapture)
	}
	key := a.captureKey
	intentID := a.intent.IntentID
	a.inFlight = true
	a.lastErr = nil
	a.mu.Unlock()
	a.emit(ctx, ems...)

	payment, err := a.client.payments.Capture(ctx, intentID, key)

	a.mu.Lock()
	a.inFlight = false
	if a.abandoned {
		a.mu.Unlock()
		return nil, ErrAttemptAbandoned
	}
	if err != nil {
		unknown := apperr.IsKind(err, apperr.NetworkFailure)
		err = apperr.Reclassify(err, apperr.PaymentFailed, op)
		if unknown {
			a.lastErr = err
			a.mu.Unlock()
			return nil, err
		}
		em := a.fail(err)
		a.mu.Unlock()
		a.emit(ctx, em)
		return nil, err
	}

	a.payment = payment
	if !payment.Succeeded() {
		message := "The payment did not go through."
		if payment.FailureReason != "" {
			message = "Payment failed: " + payment.FailureReason
		}
		failure := apperr.New(apperr.PaymentFailed, op, message)
		em := a.fail(failure)
		a.mu.Unlock()
		a.emit(ctx, em)
		a.client.logger.LogPaymentCaptured(ctx, a.id, payment.PaymentID, string(payment.Status))
		return payment, failure
	}
	em := a.move(StatePaid, payment.PaymentID)
	a.mu.Unlock()

	a.emit(ctx, em)
	a.client.logger.LogPaymentCaptured(ctx, a.id, payment.PaymentID, string(payment.Status))
	return payment, nil
}

// ConfirmReservation confirms reservationID, or the attempt's reservation
// when it is empty
func (a *Attempt) ConfirmReservation(ctx context.Context, reservationID string) (*reservations.Reservation, error) {
	id := a.resolveReservation(reservationID)
	res, err := a.client.ConfirmReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	a.updateReservation(res)
	return res, nil
}

// CancelReservation cancels reservationID, or the attempt's reservation when
// it is empty
func (a *Attempt) CancelReservation(ctx context.Context, reservationID string) (*reservations.Reservation, error) {
	id := a.resolveReservation(reservationID)
	res, err := a.client.CancelReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	a.updateReservation(res)
	return res, nil
}

// Abandon marks the attempt as no longer watched. Responses of steps still
// in flight are dropped and no further step runs.
func (a *Attempt) Abandon(ctx context.Context) {
	a.mu.Lock()
	if a.abandoned {
		a.mu.Unlock()
		return
	}
	a.abandoned = true
	state := a.state
	a.mu.Unlock()

	a.client.logger.InfoWithContext(ctx, "Attempt abandoned", map[string]interface{}{
		"attempt_id": a.id,
		"state":      state.String(),
	})
}

func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		ID:          a.id,
		State:       a.state,
		EventID:     a.eventID,
		UserID:      a.userID,
		Quantity:    a.quantity,
		Amount:      a.amount,
		Currency:    a.currency,
		CaptureKey:  a.captureKey,
		InFlight:    a.inFlight,
		Abandoned:   a.abandoned,
		CreatedAt:   a.createdAt,
		Transitions: append([]Transition{}, a.transitions...),
	}
	if a.reservation != nil {
		s.ReservationID = a.reservation.Ref()
		s.ReservationStatus = string(a.reservation.Status)
	}
	if a.intent != nil {
		s.IntentID = a.intent.IntentID
		s.IntentStatus = string(a.intent.Status)
	}
	if a.payment != nil {
		s.PaymentID = a.payment.PaymentID
		s.PaymentStatus = string(a.payment.Status)
	}
	if a.lastErr != nil {
		s.ErrorKind = apperr.KindOf(a.lastErr)
		if e, ok := apperr.As(a.lastErr); ok {
			s.Message = e.UserMessage()
		} else {
			s.Message = a.lastErr.Error()
		}
	}
	return s
}

// Err returns the failure of the last step, if any
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Attempt) resolveReservation(explicit string) string {
	if explicit != "" {
		return explicit
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reservation != nil {
		return a.reservation.Ref()
	}
	return ""
}

func (a *Attempt) updateReservation(res *reservations.Reservation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reservation != nil && a.reservation.Ref() == res.Ref() {
		a.reservation.Status = res.Status
	}
}

func (a *Attempt) busy() error {
	if a.abandoned {
		return ErrAttemptAbandoned
	}
	if a.inFlight {
		return ErrStepInFlight
	}
	return nil
}

// check verifies the attempt can move to next. Must hold a.mu.
func (a *Attempt) check(op string, next State) error {
	if err := a.busy(); err != nil {
		return err
	}
	if !a.state.CanTransition(next) {
		return a.illegal(op, next)
	}
	return nil
}

// illegal reports the identifier the requested step is missing
func (a *Attempt) illegal(op string, next State) error {
	switch next {
	case StateIntentRequested:
		if a.reservation == nil {
			return apperr.Missing(op, "reservationId")
		}
	case StateCaptureRequested:
		if a.intent == nil {
			return apperr.Missing(op, "intentId")
		}
	}
	return apperr.New(apperr.MissingParameter, op,
		fmt.Sprintf("Cannot %s while the booking is %s.", op, a.state))
}

// move records a transition. Must hold a.mu.
func (a *Attempt) move(to State, detail string) emission {
	t := Transition{From: a.state, To: to, Detail: detail, At: a.client.now().UTC()}
	a.state = to
	a.transitions = append(a.transitions, t)
	return emission{seq: len(a.transitions), record: a.recordLocked(), transition: t}
}

// emit hands ems to the side channels once every earlier transition of the
// attempt has been handed over
func (a *Attempt) emit(ctx context.Context, ems ...emission) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	if a.queued == nil {
		a.queued = make(map[int]emission)
	}
	for _, em := range ems {
		a.queued[em.seq] = em
	}
	for {
		em, ok := a.queued[a.emitted+1]
		if !ok {
			return
		}
		delete(a.queued, em.seq)
		a.emitted = em.seq
		a.client.emit(ctx, em)
	}
}

// fail moves the attempt to Failed. Must hold a.mu.
func (a *Attempt) fail(err error) emission {
	a.lastErr = err
	return a.move(StateFailed, string(apperr.KindOf(err)))
}

func (a *Attempt) recordLocked() journal.AttemptRecord {
	record := journal.AttemptRecord{
		ID:             a.id,
		SessionID:      a.client.sessionID,
		UserID:         a.userID,
		EventID:        a.eventID,
		Quantity:       a.quantity,
		State:          a.state.String(),
		ReservationKey: a.reservationKey,
		IntentKey:      a.intentKey,
		CaptureKey:     a.captureKey,
		Amount:         a.amount,
		Currency:       a.currency,
		CreatedAt:      a.createdAt,
	}
	if a.reservation != nil {
		record.ReservationID = a.reservation.Ref()
	}
	if a.intent != nil {
		record.IntentID = a.intent.IntentID
	}
	if a.payment != nil {
		record.PaymentID = a.payment.PaymentID
	}
	if a.lastErr != nil {
		record.ErrorKind = string(apperr.KindOf(a.lastErr))
		record.LastError = a.lastErr.Error()
	}
	return record
}
