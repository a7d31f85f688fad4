package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"eventhub/internal/apiclient"
	"eventhub/internal/shared/apperr"
	"eventhub/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func newTestService(t *testing.T, handler http.HandlerFunc) Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api := apiclient.New(apiclient.Config{BaseURL: srv.URL})
	return NewService(api, RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond})
}

func TestList_SendsQueryAndDecodesPage(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("size"))
		assert.Equal(t, "Oslo", r.URL.Query().Get("city"))
		json.NewEncoder(w).Encode(PaginatedEvents{
			Content:       []Event{{ID: 42, Status: StatusPublished, AvailableCapacity: intPtr(3)}},
			TotalElements: 1,
		})
	})

	page, err := svc.List(context.Background(), EventListQuery{City: "Oslo"})

	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, int64(42), page.Content[0].ID)
	assert.True(t, page.Content[0].IsBookable(2))
	assert.False(t, page.Content[0].IsBookable(4))
}

func TestList_RetriesTransientFailure(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(PaginatedEvents{})
	})

	_, err := svc.List(context.Background(), EventListQuery{})

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestList_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := svc.List(context.Background(), EventListQuery{})

	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestList_CachedWithinTTL(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(PaginatedEvents{Content: []Event{{ID: 1}}})
	})
	svc.SetCacheService(cache.NewMemoryService(), time.Minute)
	ctx := context.Background()

	_, err := svc.List(ctx, EventListQuery{})
	require.NoError(t, err)
	page, err := svc.List(ctx, EventListQuery{})
	require.NoError(t, err)
	_, err = svc.List(ctx, EventListQuery{City: "Oslo"})
	require.NoError(t, err)

	assert.Len(t, page.Content, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "distinct filters get distinct entries")
}

func TestAvailability_NeverCached(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/events/42/availability", r.URL.Path)
		json.NewEncoder(w).Encode(Availability{EventID: 42, AvailableCapacity: int(10 - n)})
	})
	svc.SetCacheService(cache.NewMemoryService(), time.Minute)
	ctx := context.Background()

	first, err := svc.Availability(ctx, 42)
	require.NoError(t, err)
	second, err := svc.Availability(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, 9, first.AvailableCapacity)
	assert.Equal(t, 8, second.AvailableCapacity)
}

func TestGet_MissingIDNotSent(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := svc.Get(context.Background(), 0)

	assert.True(t, apperr.IsKind(err, apperr.MissingParameter))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestPublish_InvalidatesListings(t *testing.T) {
	var listCalls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events":
			atomic.AddInt32(&listCalls, 1)
			json.NewEncoder(w).Encode(PaginatedEvents{})
		case "/events/5/publish":
			assert.Equal(t, http.MethodPost, r.Method)
			json.NewEncoder(w).Encode(Event{ID: 5, Status: StatusPublished})
		}
	})
	svc.SetCacheService(cache.NewMemoryService(), time.Minute)
	ctx := context.Background()

	_, err := svc.List(ctx, EventListQuery{})
	require.NoError(t, err)
	event, err := svc.Publish(ctx, 5)
	require.NoError(t, err)
	_, err = svc.List(ctx, EventListQuery{})
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, event.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&listCalls))
}

func TestPing_RequestsSmallestPage(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("size"))
		w.Write([]byte(`{"content":[]}`))
	})

	assert.NoError(t, svc.Ping(context.Background()))
}

func TestSetCacheService_ClampsTTL(t *testing.T) {
	svc := NewService(nil, RetryConfig{}).(*service)

	svc.SetCacheService(cache.NewMemoryService(), time.Hour)

	assert.Equal(t, 5*time.Minute, svc.cacheTTL)
	assert.Equal(t, 1, svc.retry.MaxAttempts)
}
