package auth

import (
	"context"
	"net/http"
	"strconv"

	"eventhub/internal/apiclient"
	"eventhub/internal/session"
	"eventhub/internal/shared/apperr"
	"eventhub/pkg/logger"
)

// Service authenticates against the backend and owns the transitions of the
// session context. Failures are never retried.
type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*session.Session, error)
	Login(ctx context.Context, req *LoginRequest) (*session.Session, error)
	Me(ctx context.Context) (*session.User, error)
	Logout(ctx context.Context) error
}

type service struct {
	api     apiclient.Doer
	session *session.Context
	logger  *logger.Logger
}

func NewService(api apiclient.Doer, sc *session.Context) Service {
	return &service{
		api:     api,
		session: sc,
		logger:  logger.GetDefault(),
	}
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*session.Session, error) {
	return s.authenticate(ctx, "register", "/auth/register", req)
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*session.Session, error) {
	return s.authenticate(ctx, "login", "/auth/login", req)
}

func (s *service) authenticate(ctx context.Context, op, path string, body interface{}) (*session.Session, error) {
	var resp AuthResponse
	err := s.api.Do(ctx, apiclient.Request{
		Op:        op,
		Method:    http.MethodPost,
		Path:      path,
		Body:      body,
		Kind:      apperr.AuthFailure,
		Anonymous: true,
	}, &resp)
	if err != nil {
		s.logger.LogAuthFailure(ctx, err.Error())
		return nil, apperr.Reclassify(err, apperr.AuthFailure, op)
	}

	if resp.Token == "" {
		s.logger.LogAuthFailure(ctx, "no token in response")
		return nil, apperr.New(apperr.AuthFailure, op, "The server did not return a session token.")
	}

	sess := session.Session{Token: resp.Token, User: resp.User()}
	if err := s.session.Establish(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.LogAuthSuccess(ctx, strconv.FormatInt(resp.UserID, 10), op)
	return &sess, nil
}

// Me refreshes the stored profile from the backend
func (s *service) Me(ctx context.Context) (*session.User, error) {
	var user session.User
	err := s.api.Do(ctx, apiclient.Request{
		Op:     "current user",
		Method: http.MethodGet,
		Path:   "/users/me",
	}, &user)
	if err != nil {
		return nil, err
	}
	if err := s.session.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *service) Logout(ctx context.Context) error {
	return s.session.Logout(ctx)
}
