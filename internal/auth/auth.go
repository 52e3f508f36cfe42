// Package auth authenticates API callers and tells editors from viewers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scheme identifies how a caller was authenticated.
type Scheme string

// Supported schemes. SchemeNone is also the "auth disabled" mode.
const (
	SchemeNone   Scheme = "none"
	SchemeBasic  Scheme = "basic"
	SchemeAPIKey Scheme = "apikey"
	SchemeMulti  Scheme = "multi"
)

// readOnlyFlag marks a credential that may watch the tracker but not change it.
const readOnlyFlag = "ro"

// Identity is an authenticated caller.
type Identity struct {
	Scheme   Scheme
	Subject  string
	ReadOnly bool
}

// CanEdit reports whether the caller may run commands that change items.
func (i *Identity) CanEdit() bool {
	return i == nil || !i.ReadOnly
}

// Authenticator validates a request and returns the caller identity.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
	Scheme() Scheme
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReadOnly           = errors.New("read-only credentials cannot change items")
	ErrUnknownMode        = errors.New("unknown auth mode")
)

type contextKey string

const identityKey contextKey = "identity"

// FromContext retrieves the caller identity from the context.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// New builds the authenticator for the given mode. It returns nil for
// mode "none". Multi mode combines every scheme that has credentials.
func New(mode, basicUsers, apiKeys string) (Authenticator, error) {
	switch Scheme(mode) {
	case SchemeNone, "":
		return nil, nil
	case SchemeBasic:
		return NewBasicAuthenticator(basicUsers)
	case SchemeAPIKey:
		return NewAPIKeyAuthenticator(apiKeys)
	case SchemeMulti:
		var authenticators []Authenticator
		if basicUsers != "" {
			basic, err := NewBasicAuthenticator(basicUsers)
			if err != nil {
				return nil, err
			}
			authenticators = append(authenticators, basic)
		}
		if apiKeys != "" {
			keys, err := NewAPIKeyAuthenticator(apiKeys)
			if err != nil {
				return nil, err
			}
			authenticators = append(authenticators, keys)
		}
		if len(authenticators) == 0 {
			return nil, fmt.Errorf("multi auth: at least one scheme must be configured")
		}
		return NewMultiAuthenticator(authenticators...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

// credential is one parsed "id:secret[:ro]" entry.
type credential struct {
	id       string
	secret   string
	readOnly bool
}

// parseCredentials parses a comma separated list of "first:second[:ro]"
// entries. kind prefixes error messages.
func parseCredentials(kind, config string) ([]credential, error) {
	trimmed := strings.TrimSpace(config)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: config must not be empty", kind)
	}

	var creds []credential
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		first, rest, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%s: invalid entry format, expected a:b", kind)
		}

		cred := credential{id: strings.TrimSpace(first), secret: strings.TrimSpace(rest)}
		if second, flag, hasFlag := strings.Cut(cred.secret, ":"); hasFlag {
			if flag != readOnlyFlag {
				return nil, fmt.Errorf("%s: unknown flag %q", kind, flag)
			}
			cred.secret = second
			cred.readOnly = true
		}

		if cred.id == "" || cred.secret == "" {
			return nil, fmt.Errorf("%s: entry parts must not be empty", kind)
		}
		creds = append(creds, cred)
	}

	if len(creds) == 0 {
		return nil, fmt.Errorf("%s: no valid entries found", kind)
	}

	return creds, nil
}
