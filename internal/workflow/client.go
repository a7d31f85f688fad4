// Package workflow drives one user from browsing an event to a paid
// reservation. It chains the identifiers returned by each backend call into
// the next, owns the idempotency keys of every mutating call, and applies a
// single retry and fallback policy.
package workflow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"eventhub/internal/apiclient"
	"eventhub/internal/auth"
	"eventhub/internal/events"
	"eventhub/internal/journal"
	"eventhub/internal/notifications"
	"eventhub/internal/payments"
	"eventhub/internal/reservations"
	"eventhub/internal/session"
	"eventhub/internal/shared/apperr"
	"eventhub/pkg/idempotency"
	"eventhub/pkg/logger"
)

var (
	ErrStepInFlight     = errors.New("this step is already in progress")
	ErrAttemptAbandoned = errors.New("booking attempt was abandoned")
	ErrAttemptNotFound  = errors.New("booking attempt not found")
)

// Deps are the collaborators of a Client. Fallback, Journal and Publisher
// are optional.
type Deps struct {
	Auth         auth.Service
	Events       events.Service
	Reservations reservations.Service
	Fallback     reservations.Creator
	Payments     payments.Service
	Session      *session.Context
	Keys         idempotency.Generator
	Journal      journal.Repository
	Publisher    notifications.Publisher
}

// Client is the booking workflow of one session
type Client struct {
	auth         auth.Service
	events       events.Service
	reservations reservations.Service
	fallback     reservations.Creator
	payments     payments.Service
	session      *session.Context
	keys         idempotency.Generator
	journal      journal.Repository
	publisher    notifications.Publisher
	logger       *logger.Logger

	policy          RetryPolicy
	defaultCurrency string
	defaultMethod   string
	sessionID       string
	now             func() time.Time

	mu        sync.Mutex
	attempts  map[string]*Attempt
	completed map[string]*reservations.Reservation
	pending   map[string]bool
}

type Option func(*Client)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithPaymentDefaults sets the currency and method used when a step does not
// name them
func WithPaymentDefaults(currency, method string) Option {
	return func(c *Client) {
		if currency != "" {
			c.defaultCurrency = strings.ToUpper(currency)
		}
		if method != "" {
			c.defaultMethod = method
		}
	}
}

// WithSessionID tags journal records with the gateway session id
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(deps Deps, opts ...Option) *Client {
	c := &Client{
		auth:            deps.Auth,
		events:          deps.Events,
		reservations:    deps.Reservations,
		fallback:        deps.Fallback,
		payments:        deps.Payments,
		session:         deps.Session,
		keys:            deps.Keys,
		journal:         deps.Journal,
		publisher:       deps.Publisher,
		logger:          logger.GetDefault(),
		policy:          DefaultRetryPolicy(),
		defaultCurrency: "USD",
		defaultMethod:   "CARD",
		now:             time.Now,
		attempts:        make(map[string]*Attempt),
		completed:       make(map[string]*reservations.Reservation),
		pending:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.keys == nil {
		c.keys = idempotency.UUIDGenerator{}
	}
	if c.publisher == nil {
		c.publisher = notifications.NewNoopPublisher()
	}
	return c
}

// Authenticate logs in. A failure leaves the previous session in place and
// is never retried.
func (c *Client) Authenticate(ctx context.Context, req *auth.LoginRequest) (*session.Session, error) {
	return c.auth.Login(ctx, req)
}

func (c *Client) Register(ctx context.Context, req *auth.RegisterRequest) (*session.Session, error) {
	return c.auth.Register(ctx, req)
}

// Logout drops the session and forgets every attempt of this client
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	for _, a := range c.attempts {
		a.Abandon(ctx)
	}
	c.attempts = make(map[string]*Attempt)
	c.completed = make(map[string]*reservations.Reservation)
	c.mu.Unlock()

	return c.auth.Logout(ctx)
}

// CurrentUser returns the logged in user
func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	s, err := c.session.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &s.User, nil
}

// RefreshUser reloads the profile from the backend and stores it in the session
func (c *Client) RefreshUser(ctx context.Context) (*session.User, error) {
	return c.auth.Me(ctx)
}

func (c *Client) ListEvents(ctx context.Context, query events.EventListQuery) (*events.PaginatedEvents, error) {
	return c.events.List(ctx, query)
}

func (c *Client) GetEvent(ctx context.Context, id int64) (*events.Event, error) {
	return c.events.Get(ctx, id)
}

func (c *Client) EventAvailability(ctx context.Context, id int64) (*events.Availability, error) {
	return c.events.Availability(ctx, id)
}

// CreateEvent and PublishEvent are organizer calls passed straight through
func (c *Client) CreateEvent(ctx context.Context, req *events.CreateEventRequest) (*events.Event, error) {
	return c.events.Create(ctx, req)
}

func (c *Client) PublishEvent(ctx context.Context, id int64) (*events.Event, error) {
	return c.events.Publish(ctx, id)
}

// Begin starts a new attempt in Browsing. eventID may be zero when the event
// is chosen later.
func (c *Client) Begin(ctx context.Context, eventID int64) *Attempt {
	a := &Attempt{
		client:    c,
		id:        idempotency.NewAttemptID(),
		state:     StateBrowsing,
		eventID:   eventID,
		userID:    c.sessionUserID(ctx),
		createdAt: c.now().UTC(),
	}

	c.mu.Lock()
	c.attempts[a.id] = a
	c.mu.Unlock()

	a.mu.Lock()
	record := a.recordLocked()
	a.mu.Unlock()
	c.save(ctx, &record)

	return a
}

// Attempt returns an attempt started by this client
func (c *Client) Attempt(id string) (*Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

// Attempts lists the journaled attempts of the current user, newest first
func (c *Client) Attempts(ctx context.Context, limit int) ([]journal.AttemptRecord, error) {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if c.journal == nil {
		return []journal.AttemptRecord{}, nil
	}
	return c.journal.ListByUser(ctx, userID, limit)
}

// Book runs reserve, intent and capture on a fresh attempt. The attempt is
// returned even when a step fails so its state can be shown.
func (c *Client) Book(ctx context.Context, in BookInput) (*Attempt, error) {
	a := c.Begin(ctx, in.EventID)

	if _, err := a.Reserve(ctx, ReserveInput{EventID: in.EventID, UserID: in.UserID, Quantity: in.Quantity}); err != nil {
		return a, err
	}
	if _, err := a.CreatePaymentIntent(ctx, IntentInput{
		Amount:      in.Amount,
		Currency:    in.Currency,
		Method:      in.Method,
		Description: in.Description,
	}); err != nil {
		return a, err
	}
	if _, err := a.Capture(ctx, CaptureInput{}); err != nil {
		return a, err
	}
	return a, nil
}

// ConfirmReservation asks the backend to confirm a reservation. Once a
// confirmation succeeded, repeating it returns the first result without a
// new request.
func (c *Client) ConfirmReservation(ctx context.Context, reservationID string) (*reservations.Reservation, error) {
	return c.reservationAction(ctx, "confirm", reservationID, c.reservations.Confirm)
}

// CancelReservation is ConfirmReservation's counterpart for cancellation
func (c *Client) CancelReservation(ctx context.Context, reservationID string) (*reservations.Reservation, error) {
	return c.reservationAction(ctx, "cancel", reservationID, c.reservations.Cancel)
}

func (c *Client) reservationAction(
	ctx context.Context,
	action, reservationID string,
	call func(context.Context, string) (*reservations.Reservation, error),
) (*reservations.Reservation, error) {
	op := action + " reservation"
	if reservationID == "" {
		return nil, apperr.Missing(op, "reservationId")
	}

	key := action + ":" + reservationID
	c.mu.Lock()
	if done, ok := c.completed[key]; ok {
		c.mu.Unlock()
		result := *done
		return &result, nil
	}
	if c.pending[key] {
		c.mu.Unlock()
		return nil, ErrStepInFlight
	}
	c.pending[key] = true
	c.mu.Unlock()

	var result *reservations.Reservation
	err := apiclient.Retry(ctx, c.policy.stateChangeAttempts(), c.policy.Backoff, func(ctx context.Context) error {
		r, err := call(ctx, reservationID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	c.mu.Lock()
	delete(c.pending, key)
	if err == nil {
		c.completed[key] = result
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	out := *result
	return &out, nil
}

// Reservations lists the reservations of the current user
func (c *Client) Reservations(ctx context.Context) ([]reservations.Reservation, error) {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.reservations.ListByUser(ctx, userID)
}

// History merges the user's payments and intents into one transaction list
func (c *Client) History(ctx context.Context) (*payments.History, error) {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	paid, err := c.payments.ListPayments(ctx, userID)
	if err != nil {
		return nil, err
	}
	intents, err := c.payments.ListIntents(ctx, userID)
	if err != nil {
		return nil, err
	}
	history := payments.Summarize(paid, intents)
	return &history, nil
}

// PaymentIntents lists the intents of the current user
func (c *Client) PaymentIntents(ctx context.Context) ([]payments.PaymentIntent, error) {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.payments.ListIntents(ctx, userID)
}

// createReservation retries the primary transport with the request's key and
// then, for transient failures, tries the fallback once with a fresh key. It
// returns the key of the request that succeeded.
func (c *Client) createReservation(ctx context.Context, attemptID string, req reservations.CreateRequest) (*reservations.Reservation, string, error) {
	const op = "create reservation"

	var created *reservations.Reservation
	primaryErr := apiclient.Retry(ctx, c.policy.attempts(), c.policy.Backoff, func(ctx context.Context) error {
		r, err := c.reservations.Create(ctx, &req)
		if err != nil {
			return err
		}
		created = r
		return nil
	})
	if primaryErr == nil {
		return created, req.IdempotencyKey, nil
	}

	if !c.policy.Fallback || c.fallback == nil || !apperr.IsRetryable(primaryErr) || ctx.Err() != nil {
		return nil, "", apperr.Reclassify(primaryErr, apperr.ReservationFailed, op)
	}

	c.logger.LogFallbackUsed(ctx, attemptID, primaryErr)
	fallbackReq := req
	fallbackReq.IdempotencyKey = c.keys.New(idempotency.PrefixReservation)

	created, err := c.fallback.Create(ctx, &fallbackReq)
	if err != nil {
		return nil, "", apperr.Join(apperr.ReservationFailed, op, primaryErr, err)
	}
	return created, fallbackReq.IdempotencyKey, nil
}

func (c *Client) sessionUserID(ctx context.Context) int64 {
	if c.session == nil {
		return 0
	}
	s, err := c.session.Current(ctx)
	if err != nil {
		return 0
	}
	return s.User.ID
}

func (c *Client) requireUser(ctx context.Context) (int64, error) {
	if c.session == nil {
		return 0, apperr.New(apperr.AuthFailure, "", "You are not logged in.")
	}
	s, err := c.session.Current(ctx)
	if err != nil {
		return 0, err
	}
	return s.User.ID, nil
}

// emission is a transition waiting to be written to the side channels
type emission struct {
	seq        int
	record     journal.AttemptRecord
	transition Transition
}

// emit journals and publishes transitions. Failures are logged only; they
// never change the outcome of a step.
func (c *Client) emit(ctx context.Context, ems ...emission) {
	ctx = context.WithoutCancel(ctx)
	for _, em := range ems {
		record := em.record
		t := em.transition
		c.logger.LogTransition(ctx, record.ID, t.From.String(), t.To.String())

		c.save(ctx, &record)
		if c.journal != nil {
			err := c.journal.AppendTransition(ctx, &journal.TransitionRecord{
				AttemptID: record.ID,
				FromState: t.From.String(),
				ToState:   t.To.String(),
				Detail:    t.Detail,
				CreatedAt: t.At,
			})
			if err != nil {
				c.logger.ErrorWithContext(ctx, "Failed to journal transition", err, map[string]interface{}{
					"attempt_id": record.ID,
				})
			}
		}

		event := notifications.NewTransitionEvent(record.ID, t.From.String(), t.To.String())
		event.SessionID = record.SessionID
		event.UserID = record.UserID
		event.EventID = record.EventID
		event.ReservationID = record.ReservationID
		event.IntentID = record.IntentID
		event.PaymentID = record.PaymentID
		event.ErrorKind = record.ErrorKind
		event.Message = record.LastError
		event.OccurredAt = t.At
		if err := c.publisher.Publish(ctx, event); err != nil {
			c.logger.ErrorWithContext(ctx, "Failed to publish transition", err, map[string]interface{}{
				"attempt_id": record.ID,
				"to":         t.To.String(),
			})
		}
	}
}

func (c *Client) save(ctx context.Context, record *journal.AttemptRecord) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Save(context.WithoutCancel(ctx), record); err != nil {
		c.logger.ErrorWithContext(ctx, "Failed to journal attempt", err, map[string]interface{}{
			"attempt_id": record.ID,
			"state":      record.State,
		})
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
