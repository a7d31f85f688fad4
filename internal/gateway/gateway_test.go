package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"eventhub/internal/journal"
	"eventhub/internal/notifications"
	"eventhub/internal/session"
	"eventhub/internal/shared/apperr"
	"eventhub/internal/shared/config"
	"eventhub/internal/shared/middleware"
	"eventhub/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     map[string]any  `json:"errors"`
}

type testGateway struct {
	engine       *gin.Engine
	registry     *Registry
	reserveCalls int32
	rejectAuth   atomic.Bool
}

func newTestGateway(t *testing.T, roles ...string) *testGateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if len(roles) == 0 {
		roles = []string{"USER"}
	}

	g := &testGateway{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": "T1", "userId": 7, "email": "a@b.com", "roles": roles})
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 7, "email": "a@b.com", "firstName": "Ada", "roles": roles})
	})
	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"id":42,"title":"Gig","status":"PUBLISHED","availableCapacity":3,"price":50}],"totalPages":1,"totalElements":1}`))
	})
	mux.HandleFunc("POST /api/v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.reserveCalls, 1)
		if g.rejectAuth.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"token revoked"}`))
			return
		}
		w.Write([]byte(`{"reservationId":"RES-1","status":"PENDING","totalPrice":100.00}`))
	})
	mux.HandleFunc("POST /api/v1/payments/intents", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"intentId":"PI-1","reservationId":"RES-1","status":"CREATED"}`))
	})
	mux.HandleFunc("POST /api/v1/payments/intents/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paymentId":"PAY-1","status":"SUCCEEDED"}`))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		APIPrefix: "/api",
		Backend: config.BackendConfig{
			BaseURL:       backend.URL,
			VersionPrefix: "/api/v1",
			Timeout:       2 * time.Second,
		},
		Workflow: config.WorkflowConfig{
			ReservationMaxAttempts: 1,
			ReadMaxAttempts:        1,
			StateChangeMaxAttempts: 1,
			DefaultCurrency:        "USD",
			DefaultPaymentMethod:   "CARD",
		},
	}

	g.registry = NewRegistry(NewWorkflowFactory(Shared{
		Config:    cfg,
		Sessions:  session.MemoryFactory(),
		Journal:   journal.NewMemoryRepository(),
		Publisher: notifications.NewNoopPublisher(),
	}))

	g.engine = gin.New()
	SetupGatewayRoutes(g.engine.Group("/api/v1"), NewController(g.registry))
	return g
}

func (g *testGateway) do(t *testing.T, method, path, sessionID string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(middleware.SessionIDHeader, sessionID)
	}
	w := httptest.NewRecorder()
	g.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (g *testGateway) login(t *testing.T) string {
	t.Helper()
	code, resp := g.do(t, http.MethodPost, "/session", "", nil)
	require.Equal(t, http.StatusCreated, code)
	var s SessionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &s))

	code, _ = g.do(t, http.MethodPost, "/auth/login", s.SessionID, map[string]string{"email": "a@b.com", "password": "secret"})
	require.Equal(t, http.StatusOK, code)
	return s.SessionID
}

func decodeSnapshot(t *testing.T, resp apiResponse) workflow.Snapshot {
	t.Helper()
	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	return snap
}

func TestNewSession_IssuesUUID(t *testing.T) {
	g := newTestGateway(t)

	code, resp := g.do(t, http.MethodPost, "/session", "", nil)

	require.Equal(t, http.StatusCreated, code)
	var s SessionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &s))
	_, err := uuid.Parse(s.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, 1, g.registry.Len())

	code, resp = g.do(t, http.MethodGet, "/events", s.SessionID, nil)
	assert.Equal(t, http.StatusOK, code, resp.Message)
}

func TestScopedRoutes_RejectUnissuedSession(t *testing.T) {
	g := newTestGateway(t)

	code, resp := g.do(t, http.MethodGet, "/events", uuid.NewString(), nil)

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "/login", resp.Errors["redirect"])
	assert.Equal(t, 0, g.registry.Len())
}

func TestScopedRoutes_RequireSessionHeader(t *testing.T) {
	g := newTestGateway(t)

	code, _ := g.do(t, http.MethodGet, "/events", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = g.do(t, http.MethodGet, "/events", "not-a-session", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStepByStepBooking_ReachesPaid(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)

	code, resp := g.do(t, http.MethodPost, "/attempts", sid, BeginAttemptRequest{EventID: 42})
	require.Equal(t, http.StatusCreated, code)
	attemptID := decodeSnapshot(t, resp).ID
	require.NotEmpty(t, attemptID)

	code, resp = g.do(t, http.MethodPost, "/attempts/"+attemptID+"/reserve", sid, ReserveRequest{Quantity: 2})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, workflow.StateReservationConfirmed, decodeSnapshot(t, resp).State)

	code, resp = g.do(t, http.MethodPost, "/attempts/"+attemptID+"/intent", sid, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, workflow.StateIntentCreated, decodeSnapshot(t, resp).State)

	code, resp = g.do(t, http.MethodPost, "/attempts/"+attemptID+"/capture", sid, nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = g.do(t, http.MethodGet, "/attempts/"+attemptID, sid, nil)
	require.Equal(t, http.StatusOK, code)
	snap := decodeSnapshot(t, resp)
	assert.Equal(t, workflow.StatePaid, snap.State)
	assert.Equal(t, "RES-1", snap.ReservationID)
	assert.Equal(t, "PAY-1", snap.PaymentID)
}

func TestBook_RunsWholeAttempt(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)

	code, resp := g.do(t, http.MethodPost, "/bookings", sid, BookRequest{EventID: 42, Quantity: 1})

	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, workflow.StatePaid, decodeSnapshot(t, resp).State)
}

func TestReserve_InvalidQuantityNeverReachesBackend(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)
	_, resp := g.do(t, http.MethodPost, "/attempts", sid, BeginAttemptRequest{EventID: 42})
	attemptID := decodeSnapshot(t, resp).ID

	code, resp := g.do(t, http.MethodPost, "/attempts/"+attemptID+"/reserve", sid, map[string]int{"quantity": 0})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(apperr.InvalidRequest), resp.Errors["kind"])
	assert.Zero(t, atomic.LoadInt32(&g.reserveCalls))
}

func TestIntentBeforeReserve_IsMissingParameter(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)
	_, resp := g.do(t, http.MethodPost, "/attempts", sid, BeginAttemptRequest{EventID: 42})
	attemptID := decodeSnapshot(t, resp).ID

	code, resp := g.do(t, http.MethodPost, "/attempts/"+attemptID+"/intent", sid, nil)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(apperr.MissingParameter), resp.Errors["kind"])
	assert.Equal(t, workflow.StateBrowsing, decodeSnapshot(t, resp).State)
}

func TestBackendUnauthorized_ClearsSessionAndRedirects(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)
	g.rejectAuth.Store(true)

	code, resp := g.do(t, http.MethodPost, "/bookings", sid, BookRequest{EventID: 42, Quantity: 1})

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, session.LoginPath, resp.Errors["redirect"])
	assert.Equal(t, workflow.StateFailed, decodeSnapshot(t, resp).State)

	code, resp = g.do(t, http.MethodGet, "/me", sid, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, session.LoginPath, resp.Errors["redirect"])
}

func TestOrganizerRoutes_CheckRoles(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		g := newTestGateway(t)
		_, resp := g.do(t, http.MethodPost, "/session", "", nil)
		var s SessionResponse
		require.NoError(t, json.Unmarshal(resp.Data, &s))

		code, resp := g.do(t, http.MethodPost, "/events/42/publish", s.SessionID, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "/login", resp.Errors["redirect"])
	})

	t.Run("plain user", func(t *testing.T) {
		g := newTestGateway(t)
		sid := g.login(t)

		code, _ := g.do(t, http.MethodPost, "/events/42/publish", sid, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})
}

func TestMe_RefreshLoadsProfile(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)

	code, resp := g.do(t, http.MethodGet, "/me", sid, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(resp.Data), "Ada")

	code, resp = g.do(t, http.MethodGet, "/me?refresh=true", sid, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"firstName":"Ada"`)

	_, resp = g.do(t, http.MethodGet, "/me", sid, nil)
	assert.Contains(t, string(resp.Data), `"firstName":"Ada"`, "refreshed profile is stored in the session")
}

func TestUnknownAttempt_NotFound(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)

	code, _ := g.do(t, http.MethodGet, "/attempts/nope", sid, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListEvents_PassesThrough(t *testing.T) {
	g := newTestGateway(t)
	sid := g.login(t)

	code, resp := g.do(t, http.MethodGet, "/events?page=0&size=5&city=Pune", sid, nil)

	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"Gig"`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{workflow.ErrStepInFlight, http.StatusConflict},
		{workflow.ErrAttemptAbandoned, http.StatusGone},
		{workflow.ErrAttemptNotFound, http.StatusNotFound},
		{ErrUnknownSession, http.StatusUnauthorized},
		{apperr.New(apperr.AuthFailure, "op", ""), http.StatusUnauthorized},
		{apperr.Missing("op", "reservationId"), http.StatusBadRequest},
		{apperr.New(apperr.InvalidRequest, "op", ""), http.StatusBadRequest},
		{apperr.Network("op", errors.New("reset")), http.StatusBadGateway},
		{apperr.New(apperr.ReservationFailed, "op", ""), http.StatusUnprocessableEntity},
		{apperr.New(apperr.PaymentFailed, "op", ""), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRegistry_SweepDropsIdleSessions(t *testing.T) {
	stores := session.NewMemoryStores()
	built := 0
	r := NewRegistry(func(id string) *workflow.Client {
		built++
		stores.Store(id)
		return workflow.NewClient(workflow.Deps{})
	}, WithEvict(stores.Drop))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idle := r.Issue()
	now = now.Add(20 * time.Minute)
	active := r.Issue()

	assert.Equal(t, 1, r.Sweep(10*time.Minute))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, stores.Len())

	_, err := r.Get(active)
	require.NoError(t, err)
	_, err = r.Get(idle)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 2, built)
}

func TestRegistry_ResumeAdmitsPersistedSession(t *testing.T) {
	persisted := uuid.NewString()
	r := NewRegistry(func(string) *workflow.Client {
		return workflow.NewClient(workflow.Deps{})
	}, WithResume(func(id string) bool { return id == persisted }))

	client, err := r.Get(persisted)
	require.NoError(t, err)
	again, err := r.Get(persisted)
	require.NoError(t, err)
	assert.Same(t, client, again)

	_, err = r.Get(uuid.NewString())
	assert.ErrorIs(t, err, ErrUnknownSession)
}
