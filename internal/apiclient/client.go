// Package apiclient is the JSON-over-HTTP transport shared by every typed
// wrapper around the ticketing backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventhub/internal/shared/apperr"
	"eventhub/pkg/idempotency"
	"eventhub/pkg/logger"

	"github.com/go-playground/validator/v10"
)

const maxResponseBytes = 1 << 20

// TokenSource supplies the bearer token for outgoing requests. An empty token
// means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// UnauthorizedHandler is invoked whenever the backend answers 401.
type UnauthorizedHandler func(ctx context.Context, op string)

// Doer is what the typed wrappers depend on.
type Doer interface {
	Do(ctx context.Context, req Request, out interface{}) error
}

// Request describes one backend call
type Request struct {
	Op        string // human readable operation, used in errors and logs
	Method    string
	Path      string
	Query     url.Values
	Body      interface{}
	Kind      apperr.Kind // classification for non-2xx answers
	Anonymous bool        // no bearer token, and a 401 is not a session signal
}

// Config holds transport configuration
type Config struct {
	Name          string
	BaseURL       string
	Timeout       time.Duration
	SlowThreshold time.Duration
}

// Client is a JSON REST client with a finite timeout
type Client struct {
	name           string
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	validate       *validator.Validate
	logger         *logger.Logger
	slow           time.Duration
}

// Option customizes a Client
type Option func(*Client)

// WithTokenSource attaches bearer tokens from ts
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler registers the 401 hook
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

// WithLogger replaces the default logger
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying http.Client. The client's timeout is
// forced to the configured one when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates the primary transport. It reuses connections.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
		logger:   logger.GetDefault(),
		slow:     cfg.SlowThreshold,
	}
	if c.name == "" {
		c.name = "primary"
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Timeout <= 0 {
		c.http.Timeout = cfg.Timeout
	}
	return c
}

// NewFallback creates a second, independently wired transport for the same
// backend: its own connection pool, no keep-alives, so a wedged connection on
// the primary path cannot affect it.
func NewFallback(cfg Config, opts ...Option) *Client {
	if cfg.Name == "" {
		cfg.Name = "fallback"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	hc := &http.Client{Timeout: cfg.Timeout, Transport: transport}
	return New(cfg, append([]Option{WithHTTPClient(hc)}, opts...)...)
}

// Name identifies the transport in logs
func (c *Client) Name() string { return c.name }

// Do sends req and decodes a 2xx JSON answer into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	if req.Kind == "" {
		req.Kind = apperr.RequestFailed
	}
	if req.Op == "" {
		req.Op = req.Method + " " + req.Path
	}

	if err := c.validateBody(req); err != nil {
		return err
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return err
	}

	correlationID := idempotency.NewCorrelationID()
	httpReq.Header.Set("X-Correlation-ID", correlationID)
	log := c.logger.WithCorrelationID(correlationID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		netErr := apperr.Network(req.Op, err)
		log.LogAPICall(ctx, req.Method, req.Path, 0, duration, err)
		return netErr
	}
	defer resp.Body.Close()

	if c.slow > 0 && duration > c.slow {
		log.LogSlowCall(ctx, req.Path, duration)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.LogAPICall(ctx, req.Method, req.Path, resp.StatusCode, duration, err)
		return apperr.Network(req.Op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		classified := apperr.FromStatus(req.Kind, req.Op, resp.StatusCode, serverMessage(body))
		log.LogAPICall(ctx, req.Method, req.Path, resp.StatusCode, duration, classified)
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil && !req.Anonymous {
			c.onUnauthorized(ctx, req.Op)
		}
		return classified
	}

	log.LogAPICall(ctx, req.Method, req.Path, resp.StatusCode, duration, nil)

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Network(req.Op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apperr.New(apperr.InvalidRequest, req.Op, "request could not be encoded")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, apperr.New(apperr.InvalidRequest, req.Op, "request could not be built")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if !req.Anonymous && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

func (c *Client) validateBody(req Request) error {
	if req.Body == nil {
		return nil
	}
	err := c.validate.Struct(req.Body)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// not a struct, nothing to validate
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.New(apperr.InvalidRequest, req.Op,
			fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return apperr.New(apperr.InvalidRequest, req.Op, err.Error())
}

// serverMessage extracts a human readable message from an error body
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Detail != "":
		return payload.Detail
	default:
		return payload.Error
	}
}
