// Package auth verifies request credentials.
//
// The shipped scheme treats the caller's user id as a bearer credential. It
// sits behind Authenticator so a signed token or session cookie can replace it
// without touching handlers.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// QueryParam carries the credential on websocket upgrades, where browsers
// cannot set headers.
const QueryParam = "auth"

// Principal is an authenticated caller.
type Principal struct {
	UserID string
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// UserDirectory reports whether a user id is registered.
type UserDirectory interface {
	UserExists(userID string) bool
}

// IdentifierAuthenticator accepts a registered user id as the credential.
type IdentifierAuthenticator struct {
	users      UserDirectory
	allowQuery bool
}

// NewIdentifierAuthenticator checks credentials against users. With
// allowQuery the credential may also come from the ?auth= query parameter.
func NewIdentifierAuthenticator(users UserDirectory, allowQuery bool) *IdentifierAuthenticator {
	return &IdentifierAuthenticator{users: users, allowQuery: allowQuery}
}

func (a *IdentifierAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	token := Credential(r)
	if token == "" && a.allowQuery {
		token = strings.TrimSpace(r.URL.Query().Get(QueryParam))
	}
	if token == "" {
		return Principal{}, apperr.ErrUnauthorized
	}
	if !a.users.UserExists(token) {
		return Principal{}, apperr.ErrUnauthorized
	}
	return Principal{UserID: token}, nil
}

// Credential extracts the raw credential from the Authorization header,
// tolerating a "Bearer " prefix.
func Credential(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
