// Package auth logs operators in against the backend user directory and keeps
// the resulting identity in the HTTP session.
package auth

import (
	"context"
	"errors"

	"github.com/smart-economato/economato/internal/backend"
)

// ErrInvalidCredentials is returned when the directory has no matching user.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrNotAuthenticated is returned when the session carries no user.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// User is the identity kept in the session.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol"`
}

// SessionBlob is the stored login record. Timestamp is the login time in Unix
// milliseconds.
type SessionBlob struct {
	User      User  `json:"user"`
	Timestamp int64 `json:"timestamp"`
}

// Directory looks users up by their credentials.
type Directory interface {
	FindUsers(ctx context.Context, username, password string) ([]backend.User, error)
}

func userFromBackend(u backend.User) User {
	return User{ID: u.ID.String(), Username: u.Username, Nombre: u.Nombre, Rol: u.Rol}
}

type userContextKey struct{}

// ContextWithUser stores u in ctx.
func ContextWithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey{}).(User)
	return u, ok
}
