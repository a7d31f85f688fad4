package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventhub/internal/shared/apperr"
	"eventhub/pkg/logger"

	"github.com/golang-jwt/jwt/v4"
)

// LoginPath is where a client is sent after its session is dropped
const LoginPath = "/login"

// Redirect is the signal emitted when the session has been invalidated
type Redirect struct {
	Path   string
	Reason string
}

// RedirectHandler receives redirect signals
type RedirectHandler func(ctx context.Context, r Redirect)

// Context is the one place the session is read and mutated. Requests read
// the token through Token; only Establish, UpdateUser and Invalidate write.
type Context struct {
	store      Store
	onRedirect RedirectHandler
	logger     *logger.Logger
	now        func() time.Time
	parser     *jwt.Parser
}

type ContextOption func(*Context)

func WithRedirectHandler(h RedirectHandler) ContextOption {
	return func(c *Context) { c.onRedirect = h }
}

func WithLogger(l *logger.Logger) ContextOption {
	return func(c *Context) { c.logger = l }
}

// WithClock overrides the clock used for token expiry checks
func WithClock(now func() time.Time) ContextOption {
	return func(c *Context) { c.now = now }
}

func NewContext(store Store, opts ...ContextOption) *Context {
	c := &Context{
		store:  store,
		logger: logger.GetDefault(),
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Establish stores a freshly authenticated session, replacing any previous one
func (c *Context) Establish(ctx context.Context, s Session) error {
	if s.Token == "" {
		return apperr.New(apperr.AuthFailure, "establish session", "no token received")
	}
	if err := c.store.Save(ctx, s); err != nil {
		return fmt.Errorf("establish session: %w", err)
	}
	return nil
}

// UpdateUser refreshes the stored profile, keeping the current token
func (c *Context) UpdateUser(ctx context.Context, u User) error {
	current, err := c.Current(ctx)
	if err != nil {
		return err
	}
	current.User = u
	return c.store.Save(ctx, *current)
}

// Invalidate removes token and user together and emits the login redirect
func (c *Context) Invalidate(ctx context.Context, reason string) error {
	err := c.store.Clear(ctx)
	c.logger.LogSessionInvalidated(ctx, reason)
	if c.onRedirect != nil {
		c.onRedirect(ctx, Redirect{Path: LoginPath, Reason: reason})
	}
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// Logout drops the session without emitting a redirect
func (c *Context) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Current returns the active session. An expired bearer token invalidates
// the session and yields an AuthFailure.
func (c *Context) Current(ctx context.Context) (*Session, error) {
	s, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, apperr.New(apperr.AuthFailure, "session", "You are not logged in.")
		}
		return nil, apperr.Network("load session", err)
	}
	if c.expired(s.Token) {
		c.dropSession(ctx, "token expired")
		return nil, apperr.New(apperr.AuthFailure, "session", "Your session has expired. Please log in again.")
	}
	return s, nil
}

// IsAuthenticated reports whether a usable session exists
func (c *Context) IsAuthenticated(ctx context.Context) bool {
	_, err := c.Current(ctx)
	return err == nil
}

// Token implements the transport's token source. No session means the
// request goes out without a bearer header.
func (c *Context) Token(ctx context.Context) (string, error) {
	s, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return "", nil
		}
		return "", apperr.Network("load session", err)
	}
	if c.expired(s.Token) {
		c.dropSession(ctx, "token expired")
		return "", apperr.New(apperr.AuthFailure, "session", "Your session has expired. Please log in again.")
	}
	return s.Token, nil
}

// HandleUnauthorized is registered as the transport's 401 hook
func (c *Context) HandleUnauthorized(ctx context.Context, op string) {
	c.dropSession(ctx, "unauthorized response from "+op)
}

// dropSession invalidates for callers that have no error to return
func (c *Context) dropSession(ctx context.Context, reason string) {
	if err := c.Invalidate(ctx, reason); err != nil {
		c.logger.ErrorWithContext(ctx, "Failed to clear session", err, map[string]interface{}{
			"reason": reason,
		})
	}
}

// expired decodes the token as a JWT without verifying it. Opaque tokens
// never expire client side.
func (c *Context) expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}
