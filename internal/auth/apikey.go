package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the HTTP header carrying the API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator authenticates requests by the X-API-Key header.
type APIKeyAuthenticator struct {
	keys []credential
}

// NewAPIKeyAuthenticator parses "key:name[:ro]" entries separated by commas.
func NewAPIKeyAuthenticator(keysConfig string) (*APIKeyAuthenticator, error) {
	creds, err := parseCredentials("apikey auth", keysConfig)
	if err != nil {
		return nil, err
	}
	return &APIKeyAuthenticator{keys: creds}, nil
}

// Authenticate compares the header value with every configured key in
// constant time.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	apiKey := r.Header.Get(APIKeyHeader)
	if apiKey == "" {
		return nil, ErrUnauthenticated
	}

	var match *credential
	for i := range a.keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(a.keys[i].id)) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidAPIKey
	}

	return &Identity{
		Scheme:   SchemeAPIKey,
		Subject:  match.secret,
		ReadOnly: match.readOnly,
	}, nil
}

// Scheme returns SchemeAPIKey.
func (a *APIKeyAuthenticator) Scheme() Scheme {
	return SchemeAPIKey
}
