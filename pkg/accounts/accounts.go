// Package accounts implements login, registration and profile lookup
// against the backend's /accounts endpoints.
package accounts

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/gateway"
)

const (
	LoginPath    = "/accounts/login/"
	RegisterPath = "/accounts/register/"
	ProfilePath  = "/accounts/profile/"

	LoginFailedMessage        = "Login failed. Please try again."
	RegistrationFailedMessage = "Registration failed. Please try again."
)

var ErrMissingCredentials = errors.New("username and password are required")

// SessionWriter persists and clears credentials. session.Store implements it.
type SessionWriter interface {
	Set(ctx context.Context, accessToken, refreshToken, username string) error
	Clear(ctx context.Context) error
}

type Profile struct {
	ID       int    `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
}

type tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type Service struct {
	requester gateway.Requester
	sessions  SessionWriter
	logger    zerolog.Logger
}

func NewService(requester gateway.Requester, sessions SessionWriter) *Service {
	return &Service{
		requester: requester,
		sessions:  sessions,
		logger:    log.With().Str("component", "accounts").Logger(),
	}
}

// Login exchanges credentials for tokens and confirms them against the
// profile endpoint before anything is stored. On failure the stored session
// is left as it was.
func (s *Service) Login(ctx context.Context, username, password string) (Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Profile{}, ErrMissingCredentials
	}

	resp, err := s.requester.Request(ctx, http.MethodPost, LoginPath,
		map[string]string{"username": username, "password": password},
		gateway.WithoutAuth())
	if err != nil {
		return Profile{}, errors.Wrap(err, "login")
	}
	var tok tokens
	if err := resp.Decode(&tok); err != nil {
		return Profile{}, errors.Wrap(err, "login")
	}
	if tok.Access == "" {
		return Profile{}, errors.New("login: response carried no access token")
	}

	profile, err := s.profile(ctx, gateway.WithBearer(tok.Access))
	if err != nil {
		return Profile{}, errors.Wrap(err, "login: verify profile")
	}
	if profile.Username == "" {
		profile.Username = username
	}

	if err := s.sessions.Set(ctx, tok.Access, tok.Refresh, profile.Username); err != nil {
		return Profile{}, errors.Wrap(err, "login: persist session")
	}
	s.logger.Info().Str("username", profile.Username).Msg("logged in")
	return profile, nil
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Register creates an account. It does not log the user in.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	_, err := s.requester.Request(ctx, http.MethodPost, RegisterPath, registerRequest{
		Username: username,
		Email:    strings.TrimSpace(email),
		Password: password,
	}, gateway.WithoutAuth())
	if err != nil {
		return errors.Wrap(err, "register")
	}
	s.logger.Info().Str("username", username).Msg("registered")
	return nil
}

func (s *Service) Profile(ctx context.Context) (Profile, error) {
	p, err := s.profile(ctx)
	if err != nil {
		return Profile{}, errors.Wrap(err, "profile")
	}
	return p, nil
}

func (s *Service) profile(ctx context.Context, opts ...gateway.RequestOption) (Profile, error) {
	resp, err := s.requester.Request(ctx, http.MethodGet, ProfilePath, nil, opts...)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := resp.Decode(&p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Logout is local only: the backend keeps no server-side session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.sessions.Clear(ctx); err != nil {
		return errors.Wrap(err, "logout")
	}
	s.logger.Info().Msg("logged out")
	return nil
}

// LoginErrorMessage maps a Login error to the text shown to the user.
func LoginErrorMessage(err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return "Please enter your username and password."
	}
	if gateway.Classify(err) == gateway.KindAuth {
		// a 401 on login means wrong credentials, not an expired session
		return LoginFailedMessage
	}
	return gateway.UserMessage(err, LoginFailedMessage)
}

func RegisterErrorMessage(err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return "Please enter a username and password."
	}
	if gateway.Classify(err) == gateway.KindAuth {
		return RegistrationFailedMessage
	}
	return gateway.UserMessage(err, RegistrationFailedMessage)
}
