package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/smart-economato/economato/internal/shared"
)

// SessionKey is the session value holding the login record.
const SessionKey = "smartEconomato_session"

// Service wraps authentication business rules.
type Service struct {
	dir Directory
	now func() time.Time
}

// NewService constructs a new Service.
func NewService(dir Directory) *Service {
	return &Service{dir: dir, now: time.Now}
}

// Authenticate returns the first directory user matching the credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	users, err := s.dir.FindUsers(ctx, username, password)
	if err != nil {
		return User{}, fmt.Errorf("auth: find users: %w", err)
	}
	if len(users) == 0 {
		return User{}, ErrInvalidCredentials
	}
	return userFromBackend(users[0]), nil
}

// SaveSession stores u as the logged-in user of sess.
func (s *Service) SaveSession(sess *shared.Session, u User) error {
	if sess == nil {
		return shared.ErrSessionMissing
	}
	return sess.SetJSON(SessionKey, SessionBlob{User: u, Timestamp: s.now().UnixMilli()})
}

// CurrentSession returns the login record of sess. A present record is the
// only proof of authentication.
func CurrentSession(sess *shared.Session) (SessionBlob, error) {
	var blob SessionBlob
	ok, err := sess.GetJSON(SessionKey, &blob)
	if err != nil || !ok {
		return SessionBlob{}, ErrNotAuthenticated
	}
	return blob, nil
}
