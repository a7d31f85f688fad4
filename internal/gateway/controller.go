package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"eventhub/internal/auth"
	"eventhub/internal/events"
	"eventhub/internal/shared/apperr"
	"eventhub/internal/shared/middleware"
	"eventhub/internal/shared/utils/response"
	"eventhub/internal/workflow"

	"github.com/gin-gonic/gin"
)

const clientKey = "workflow_client"

type Controller interface {
	NewSession(c *gin.Context)
	Login(c *gin.Context)
	Register(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)

	ListEvents(c *gin.Context)
	GetEvent(c *gin.Context)
	GetAvailability(c *gin.Context)
	CreateEvent(c *gin.Context)
	PublishEvent(c *gin.Context)

	BeginAttempt(c *gin.Context)
	ListAttempts(c *gin.Context)
	GetAttempt(c *gin.Context)
	Reserve(c *gin.Context)
	CreateIntent(c *gin.Context)
	Capture(c *gin.Context)
	Abandon(c *gin.Context)
	Book(c *gin.Context)

	ConfirmReservation(c *gin.Context)
	CancelReservation(c *gin.Context)
	ListReservations(c *gin.Context)
	PaymentHistory(c *gin.Context)
	ListIntents(c *gin.Context)

	LoadSession() gin.HandlerFunc
}

type controller struct {
	registry *Registry
}

func NewController(registry *Registry) Controller {
	return &controller{registry: registry}
}

// LoadSession resolves the workflow client of the X-Session-ID and exposes
// the logged in user's id and roles to later middlewares
func (ctrl *controller) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := ctrl.registry.Get(c.GetString(middleware.SessionIDKey))
		if err != nil {
			respondError(c, err, nil)
			c.Abort()
			return
		}
		c.Set(clientKey, client)
		if user, err := client.CurrentUser(c.Request.Context()); err == nil {
			c.Set(middleware.UserIDKey, user.ID)
			c.Set(middleware.UserRolesKey, user.Roles)
		}
		c.Next()
	}
}

func clientFrom(c *gin.Context) *workflow.Client {
	return c.MustGet(clientKey).(*workflow.Client)
}

// NewSession godoc
// @Summary      Issue a gateway session
// @Tags         session
// @Produce      json
// @Success      201  {object}  response.StandardApiResponse{data=SessionResponse}
// @Router       /session [post]
func (ctrl *controller) NewSession(c *gin.Context) {
	id := ctrl.registry.Issue()
	c.Header(middleware.SessionIDHeader, id)
	response.RespondJSON(c, "success", http.StatusCreated, "Session created", SessionResponse{SessionID: id}, nil)
}

// Login godoc
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        X-Session-ID  header  string             true  "Gateway session id"
// @Param        body          body    auth.LoginRequest  true  "Credentials"
// @Success      200  {object}  response.StandardApiResponse{data=auth.UserResponse}
// @Failure      401  {object}  response.StandardApiResponse
// @Router       /auth/login [post]
func (ctrl *controller) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	sess, err := clientFrom(c).Authenticate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Login successful", auth.NewUserResponse(sess.User), nil)
}

func (ctrl *controller) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	sess, err := clientFrom(c).Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Registration successful", auth.NewUserResponse(sess.User), nil)
}

func (ctrl *controller) Logout(c *gin.Context) {
	if err := clientFrom(c).Logout(c.Request.Context()); err != nil {
		respondError(c, err, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Logged out", nil, nil)
}

func (ctrl *controller) Me(c *gin.Context) {
	client := clientFrom(c)
	get := client.CurrentUser
	if c.Query("refresh") == "true" {
		get = client.RefreshUser
	}

	user, err := get(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "User retrieved successfully", auth.NewUserResponse(*user), nil)
}

// ListEvents godoc
// @Summary      List events
// @Tags         events
// @Produce      json
// @Param        page        query  int     false  "Page, zero based"
// @Param        size        query  int     false  "Page size"
// @Param        searchTerm  query  string  false  "Free text search"
// @Param        city        query  string  false  "City filter"
// @Param        eventType   query  string  false  "Event type filter"
// @Success      200  {object}  response.StandardApiResponse{data=events.PaginatedEvents}
// @Router       /events [get]
func (ctrl *controller) ListEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := clientFrom(c).ListEvents(c.Request.Context(), events.EventListQuery{
		Page:       page,
		Size:       size,
		SearchTerm: c.Query("searchTerm"),
		City:       c.Query("city"),
		EventType:  c.Query("eventType"),
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Events retrieved successfully", result, nil)
}

func (ctrl *controller) GetEvent(c *gin.Context) {
	eventID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	event, err := clientFrom(c).GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Event retrieved successfully", event, nil)
}

func (ctrl *controller) GetAvailability(c *gin.Context) {
	eventID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	availability, err := clientFrom(c).EventAvailability(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Availability retrieved successfully", availability, nil)
}

func (ctrl *controller) CreateEvent(c *gin.Context) {
	var req events.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	event, err := clientFrom(c).CreateEvent(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Event created successfully", event, nil)
}

func (ctrl *controller) PublishEvent(c *gin.Context) {
	eventID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	event, err := clientFrom(c).PublishEvent(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Event published successfully", event, nil)
}

// BeginAttempt godoc
// @Summary      Start a booking attempt
// @Tags         attempts
// @Accept       json
// @Produce      json
// @Param        X-Session-ID  header  string               true   "Gateway session id"
// @Param        body          body    BeginAttemptRequest  false  "Event to book"
// @Success      201  {object}  response.StandardApiResponse{data=workflow.Snapshot}
// @Router       /attempts [post]
func (ctrl *controller) BeginAttempt(c *gin.Context) {
	var req BeginAttemptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	attempt := clientFrom(c).Begin(c.Request.Context(), req.EventID)
	response.RespondJSON(c, "success", http.StatusCreated, "Booking attempt started", attempt.Snapshot(), nil)
}

func (ctrl *controller) ListAttempts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := clientFrom(c).Attempts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Booking attempts retrieved successfully", records, nil)
}

func (ctrl *controller) GetAttempt(c *gin.Context) {
	attempt, ok := attemptFrom(c)
	if !ok {
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Booking attempt retrieved successfully", attempt.Snapshot(), nil)
}

// Reserve godoc
// @Summary      Create the reservation of an attempt
// @Tags         attempts
// @Accept       json
// @Produce      json
// @Param        X-Session-ID  header  string          true  "Gateway session id"
// @Param        id            path    string          true  "Attempt id"
// @Param        body          body    ReserveRequest  true  "Reservation"
// @Success      200  {object}  response.StandardApiResponse{data=workflow.Snapshot}
// @Failure      400  {object}  response.StandardApiResponse
// @Failure      409  {object}  response.StandardApiResponse
// @Failure      422  {object}  response.StandardApiResponse
// @Router       /attempts/{id}/reserve [post]
func (ctrl *controller) Reserve(c *gin.Context) {
	attempt, ok := attemptFrom(c)
	if !ok {
		return
	}
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	_, err := attempt.Reserve(c.Request.Context(), workflow.ReserveInput{EventID: req.EventID, Quantity: req.Quantity})
	respondStep(c, attempt, err, "Reservation created")
}

func (ctrl *controller) CreateIntent(c *gin.Context) {
	attempt, ok := attemptFrom(c)
	if !ok {
		return
	}
	var req IntentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	_, err := attempt.CreatePaymentIntent(c.Request.Context(), workflow.IntentInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		Description: req.Description,
	})
	respondStep(c, attempt, err, "Payment intent created")
}

func (ctrl *controller) Capture(c *gin.Context) {
	attempt, ok := attemptFrom(c)
	if !ok {
		return
	}
	var req CaptureRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	_, err := attempt.Capture(c.Request.Context(), workflow.CaptureInput{Reinitiate: req.Reinitiate})
	respondStep(c, attempt, err, "Payment captured")
}

func (ctrl *controller) Abandon(c *gin.Context) {
	attempt, ok := attemptFrom(c)
	if !ok {
		return
	}
	attempt.Abandon(c.Request.Context())
	response.RespondJSON(c, "success", http.StatusOK, "Booking attempt abandoned", attempt.Snapshot(), nil)
}

func (ctrl *controller) Book(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	attempt, err := clientFrom(c).Book(c.Request.Context(), workflow.BookInput{
		EventID:     req.EventID,
		Quantity:    req.Quantity,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		Description: req.Description,
	})
	respondStep(c, attempt, err, "Booking confirmed")
}

func (ctrl *controller) ConfirmReservation(c *gin.Context) {
	ctrl.reservationAction(c, "confirm")
}

func (ctrl *controller) CancelReservation(c *gin.Context) {
	ctrl.reservationAction(c, "cancel")
}

// reservationAction confirms or cancels. With ?attempt_id the attempt's view
// of the reservation is updated too.
func (ctrl *controller) reservationAction(c *gin.Context, action string) {
	client := clientFrom(c)
	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		result interface{}
		err    error
	)
	if attemptID := c.Query("attempt_id"); attemptID != "" {
		attempt, findErr := client.Attempt(attemptID)
		if findErr != nil {
			respondError(c, findErr, nil)
			return
		}
		if action == "confirm" {
			result, err = attempt.ConfirmReservation(ctx, id)
		} else {
			result, err = attempt.CancelReservation(ctx, id)
		}
	} else if action == "confirm" {
		result, err = client.ConfirmReservation(ctx, id)
	} else {
		result, err = client.CancelReservation(ctx, id)
	}
	if err != nil {
		respondError(c, err, nil)
		return
	}

	message := "Reservation confirmed"
	if action == "cancel" {
		message = "Reservation cancelled"
	}
	response.RespondJSON(c, "success", http.StatusOK, message, result, nil)
}

func (ctrl *controller) ListReservations(c *gin.Context) {
	list, err := clientFrom(c).Reservations(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Reservations retrieved successfully", list, nil)
}

func (ctrl *controller) PaymentHistory(c *gin.Context) {
	history, err := clientFrom(c).History(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Payment history retrieved successfully", history, nil)
}

func (ctrl *controller) ListIntents(c *gin.Context) {
	intents, err := clientFrom(c).PaymentIntents(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Payment intents retrieved successfully", intents, nil)
}

// respondStep answers a workflow step with the attempt snapshot, on failure
// too, so the caller can render where the attempt stopped
func respondStep(c *gin.Context, attempt *workflow.Attempt, err error, message string) {
	snapshot := attempt.Snapshot()
	if err != nil {
		respondError(c, err, snapshot)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, message, snapshot, nil)
}

func attemptFrom(c *gin.Context) (*workflow.Attempt, bool) {
	attempt, err := clientFrom(c).Attempt(c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return nil, false
	}
	return attempt, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || value <= 0 {
		respondError(c, apperr.New(apperr.InvalidRequest, "", "Invalid "+name), nil)
		return 0, false
	}
	return value, true
}
