package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// BasicAuthenticator authenticates requests using HTTP Basic
// authentication with bcrypt-hashed passwords.
type BasicAuthenticator struct {
	users map[string]credential
}

// NewBasicAuthenticator parses "user:bcrypt_hash[:ro]" entries separated
// by commas.
func NewBasicAuthenticator(usersConfig string) (*BasicAuthenticator, error) {
	creds, err := parseCredentials("basic auth", usersConfig)
	if err != nil {
		return nil, err
	}

	users := make(map[string]credential, len(creds))
	for _, c := range creds {
		users[c.id] = c
	}

	return &BasicAuthenticator{users: users}, nil
}

// Authenticate verifies the Basic credentials against the bcrypt hash.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrUnauthenticated
	}

	user, exists := a.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.secret), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", ErrInvalidCredentials)
	}

	return &Identity{
		Scheme:   SchemeBasic,
		Subject:  username,
		ReadOnly: user.readOnly,
	}, nil
}

// Scheme returns SchemeBasic.
func (a *BasicAuthenticator) Scheme() Scheme {
	return SchemeBasic
}
