package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"eventhub/internal/shared/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type failingToken struct{ err error }

func (f failingToken) Token(context.Context) (string, error) { return "", f.err }

type widget struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gte=1"`
}

func TestDo_AttachesBearerAndDecodes(t *testing.T) {
	var gotAuth, gotCorrelation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get("X-Correlation-ID")
		assert.Equal(t, "/v1/widgets", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(widget{Name: "w", Count: 3})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1"}, WithTokenSource(staticToken("T1")))

	var out widget
	err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/widgets",
		Query:  map[string][]string{"page": {"2"}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "Bearer T1", gotAuth)
	assert.NotEmpty(t, gotCorrelation)
	assert.Equal(t, 3, out.Count)
}

func TestDo_AnonymousSkipsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, WithTokenSource(staticToken("T1")))
	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Anonymous: true}, nil)

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDo_UnauthorizedInvokesHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"JWT expired"}`))
	}))
	defer srv.Close()

	var calls int32
	c := New(Config{BaseURL: srv.URL}, WithUnauthorizedHandler(func(ctx context.Context, op string) {
		atomic.AddInt32(&calls, 1)
	}))

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me", Kind: apperr.RequestFailed}, nil)

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.AuthFailure))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_ServerMessageClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"status":409,"error":"Conflict","message":"Not enough capacity"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/reservations", Kind: apperr.ReservationFailed}, nil)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReservationFailed, e.Kind)
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, "Not enough capacity", e.UserMessage())
	assert.False(t, e.Retryable)
}

func TestDo_TimeoutIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/events"}, nil)

	assert.True(t, apperr.IsKind(err, apperr.NetworkFailure))
	assert.True(t, apperr.IsRetryable(err))
}

func TestDo_NonJSONSuccessIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>proxy error</html>"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var out widget
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/events"}, &out)

	assert.True(t, apperr.IsKind(err, apperr.NetworkFailure))
}

func TestDo_ValidationFailsWithoutRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/widgets", Body: widget{Name: "x", Count: 0}}, nil)

	assert.True(t, apperr.IsKind(err, apperr.InvalidRequest))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestDo_TokenSourceErrorStopsRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	expired := apperr.New(apperr.AuthFailure, "session", "session expired")
	c := New(Config{BaseURL: srv.URL}, WithTokenSource(failingToken{err: expired}))
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me"}, nil)

	assert.True(t, errors.Is(err, expired))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestNewFallback_IndependentTransport(t *testing.T) {
	primary := New(Config{BaseURL: "http://example.invalid"})
	fallback := NewFallback(Config{BaseURL: "http://example.invalid", Timeout: 5 * time.Second})

	assert.Equal(t, "primary", primary.Name())
	assert.Equal(t, "fallback", fallback.Name())
	assert.NotSame(t, primary.http, fallback.http)
	tr, ok := fallback.http.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, tr.DisableKeepAlives)
	assert.Equal(t, 5*time.Second, fallback.http.Timeout)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		calls++
		return apperr.FromStatus(apperr.RequestFailed, "op", http.StatusNotFound, "")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Network("op", errors.New("connection reset"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_AnonymousUnauthorizedSkipsHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	called := false
	c := New(Config{BaseURL: srv.URL}, WithUnauthorizedHandler(func(ctx context.Context, op string) { called = true }))
	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Anonymous: true}, nil)

	assert.True(t, apperr.IsKind(err, apperr.AuthFailure))
	assert.False(t, called)
}
