package auth

import (
	"errors"
	"net/http"
)

// MultiAuthenticator tries several authenticators in order. A request
// without credentials for one scheme falls through to the next; wrong
// credentials fail immediately.
type MultiAuthenticator struct {
	authenticators []Authenticator
}

// NewMultiAuthenticator creates a MultiAuthenticator.
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	return &MultiAuthenticator{authenticators: authenticators}
}

// Authenticate returns the first successful identity.
func (a *MultiAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	for _, authenticator := range a.authenticators {
		id, err := authenticator.Authenticate(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
	}

	return nil, ErrUnauthenticated
}

// Scheme returns SchemeMulti.
func (a *MultiAuthenticator) Scheme() Scheme {
	return SchemeMulti
}
