// Package session holds the current credential set of the local user.
//
// A Store is the only place the access token, refresh token and username
// are read from or written to. The three values always move together: Set
// writes all of them in one storage operation and Clear removes all of them
// in one storage operation, so a partially written session is never
// observable.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUsername     = "username"
)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUsername}

// Session is the authenticated-user credential bundle. Empty strings mean
// the value is absent.
type Session struct {
	AccessToken  string `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty" yaml:"refreshToken,omitempty"`
	Username     string `json:"username,omitempty" yaml:"username,omitempty"`
}

func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.Username == ""
}

// Store is the lifecycle service around the persisted Session.
type Store struct {
	mu      sync.Mutex
	open    func() (Storage, error)
	storage Storage
}

// NewStore wraps an already opened storage.
func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// NewLazyStore defers opening the storage until the first Load, Set or
// Clear.
func NewLazyStore(open func() (Storage, error)) *Store {
	return &Store{open: open}
}

func (s *Store) backend() (Storage, error) {
	if s.storage != nil {
		return s.storage, nil
	}
	if s.open == nil {
		return nil, errors.New("session store: no storage configured")
	}
	st, err := s.open()
	if err != nil {
		return nil, errors.Wrap(err, "session store: open storage")
	}
	s.storage = st
	return st, nil
}

// Load returns the current session, possibly empty.
func (s *Store) Load(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend()
	if err != nil {
		return Session{}, err
	}
	items, err := st.GetItems(ctx, sessionKeys...)
	if err != nil {
		return Session{}, errors.Wrap(err, "session store: load")
	}
	return Session{
		AccessToken:  items[KeyAccessToken],
		RefreshToken: items[KeyRefreshToken],
		Username:     items[KeyUsername],
	}, nil
}

// Set replaces the session with the given values.
func (s *Store) Set(ctx context.Context, accessToken, refreshToken, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend()
	if err != nil {
		return err
	}
	err = st.SetItems(ctx, map[string]string{
		KeyAccessToken:  accessToken,
		KeyRefreshToken: refreshToken,
		KeyUsername:     username,
	})
	if err != nil {
		return errors.Wrap(err, "session store: set")
	}
	log.Debug().Str("component", "session").Str("username", username).Msg("session stored")
	return nil
}

// Clear removes the session. Clearing an empty session is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.backend()
	if err != nil {
		return err
	}
	if err := st.RemoveItems(ctx, sessionKeys...); err != nil {
		return errors.Wrap(err, "session store: clear")
	}
	log.Debug().Str("component", "session").Msg("session cleared")
	return nil
}

// IsAuthenticated reports whether an access token is present. Token
// validity is decided by the backend, not here.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	sess, err := s.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("could not load session")
		return false
	}
	return strings.TrimSpace(sess.AccessToken) != ""
}

// Close releases the storage if it was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage == nil {
		return nil
	}
	err := s.storage.Close()
	s.storage = nil
	return err
}
