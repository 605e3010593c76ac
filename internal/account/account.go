// Package account acquires and drops the bearer token the request client sends.
package account

import (
	"context"
	"net/http"
	"strings"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/auth"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Service struct {
	api    API
	tokens auth.TokenStore
}

func NewService(api API, tokens auth.TokenStore) *Service {
	return &Service{api: api, tokens: tokens}
}

// Login exchanges credentials for an access token and stores it.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", apierr.Local("username and password are required")
	}
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	req := apiclient.Request{
		Method:   http.MethodPost,
		Endpoint: "auth/login",
		Form:     &apiclient.Form{Fields: map[string]any{"username": username, "password": password}},
	}
	if err := s.api.Do(ctx, req, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &apierr.Error{Kind: apierr.KindAuthentication, Endpoint: req.Endpoint, Message: "login response missing access_token"}
	}
	if err := s.tokens.Set(out.AccessToken); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (s *Service) Logout() error { return s.tokens.Clear() }

// Me returns the user the stored token belongs to.
func (s *Service) Me(ctx context.Context) (*User, error) {
	if _, ok := s.tokens.Token(); !ok {
		return nil, &apierr.Error{Kind: apierr.KindAuthentication, Message: "not logged in"}
	}
	var u User
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Endpoint: "auth/me"}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Info decodes the stored token's claims without contacting the backend.
func (s *Service) Info() (auth.TokenInfo, bool, error) {
	tok, ok := s.tokens.Token()
	if !ok {
		return auth.TokenInfo{}, false, nil
	}
	info, err := auth.Inspect(tok)
	return info, true, err
}
