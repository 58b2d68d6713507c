package api

import (
	"errors"
	"net/http"
)

// ErrNotAuthenticated reports a request with no resolvable user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Authenticator resolves the user behind a request. The platform performs
// real authentication upstream; the server only needs the resulting
// identity.
type Authenticator interface {
	UserID(r *http.Request) (string, error)
}

// HeaderAuth trusts the X-User-ID header set by the upstream proxy.
type HeaderAuth struct{}

func (HeaderAuth) UserID(r *http.Request) (string, error) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return "", ErrNotAuthenticated
	}
	return id, nil
}
