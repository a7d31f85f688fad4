package events

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"eventhub/internal/apiclient"
	"eventhub/internal/shared/apperr"
	"eventhub/internal/shared/constants"
	"eventhub/pkg/cache"
	"eventhub/pkg/logger"
)

type Service interface {
	// Service dependency injection
	SetCacheService(cacheService cache.Service, ttl time.Duration)

	List(ctx context.Context, query EventListQuery) (*PaginatedEvents, error)
	Get(ctx context.Context, id int64) (*Event, error)
	Availability(ctx context.Context, id int64) (*Availability, error)
	Ping(ctx context.Context) error

	// Organizer calls, forwarded without retry
	Create(ctx context.Context, req *CreateEventRequest) (*Event, error)
	Publish(ctx context.Context, id int64) (*Event, error)
}

// RetryConfig bounds retries of read-only calls
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

type service struct {
	api          apiclient.Doer
	retry        RetryConfig
	cacheService cache.Service
	cacheTTL     time.Duration
	logger       *logger.Logger
}

func NewService(api apiclient.Doer, retry RetryConfig) Service {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &service{
		api:    api,
		retry:  retry,
		logger: logger.GetDefault(),
	}
}

// SetCacheService injects the listing cache. The TTL is clamped to the
// maximum listing staleness.
func (s *service) SetCacheService(cacheService cache.Service, ttl time.Duration) {
	s.cacheService = cacheService
	s.cacheTTL = constants.ClampEventsTTL(ttl)
}

func (s *service) read(ctx context.Context, req apiclient.Request, out interface{}) error {
	return apiclient.Retry(ctx, s.retry.MaxAttempts, s.retry.Backoff, func(ctx context.Context) error {
		return s.api.Do(ctx, req, out)
	})
}

func (s *service) List(ctx context.Context, query EventListQuery) (*PaginatedEvents, error) {
	query = query.Normalize()

	fetch := func() (interface{}, error) {
		var page PaginatedEvents
		err := s.read(ctx, apiclient.Request{
			Op:     "list events",
			Method: http.MethodGet,
			Path:   "/events",
			Query:  query.Values(),
		}, &page)
		if err != nil {
			return nil, err
		}
		return &page, nil
	}

	if s.cacheService == nil {
		data, err := fetch()
		if err != nil {
			return nil, err
		}
		return data.(*PaginatedEvents), nil
	}

	var result PaginatedEvents
	cacheKey := constants.BuildEventListKey(query.Page, query.Size, query.Filters())
	if err := s.cacheService.GetOrSet(ctx, cacheKey, s.cacheTTL, fetch, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) Get(ctx context.Context, id int64) (*Event, error) {
	if id <= 0 {
		return nil, apperr.Missing("get event", "eventId")
	}
	var event Event
	err := s.read(ctx, apiclient.Request{
		Op:     "get event",
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/events/%d", id),
	}, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Availability always goes to the backend
func (s *service) Availability(ctx context.Context, id int64) (*Availability, error) {
	if id <= 0 {
		return nil, apperr.Missing("event availability", "eventId")
	}
	var availability Availability
	err := s.read(ctx, apiclient.Request{
		Op:     "event availability",
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/events/%d/availability", id),
	}, &availability)
	if err != nil {
		return nil, err
	}
	return &availability, nil
}

// Ping requests the smallest possible listing page
func (s *service) Ping(ctx context.Context) error {
	return s.api.Do(ctx, apiclient.Request{
		Op:     "health check",
		Method: http.MethodGet,
		Path:   "/events",
		Query:  url.Values{"page": {"0"}, "size": {"1"}},
	}, nil)
}

func (s *service) Create(ctx context.Context, req *CreateEventRequest) (*Event, error) {
	var event Event
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "create event",
		Method: http.MethodPost,
		Path:   "/events",
		Body:   req,
	}, &event)
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	return &event, nil
}

func (s *service) Publish(ctx context.Context, id int64) (*Event, error) {
	if id <= 0 {
		return nil, apperr.Missing("publish event", "eventId")
	}
	var event Event
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "publish event",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/events/%d/publish", id),
	}, &event)
	if err != nil {
		return nil, err
	}
	s.invalidateListings(ctx)
	return &event, nil
}

func (s *service) invalidateListings(ctx context.Context) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.DeletePattern(ctx, constants.PATTERN_EVENTS_ALL); err != nil {
		s.logger.Warn("failed to invalidate event listings", "error", err)
	}
}
