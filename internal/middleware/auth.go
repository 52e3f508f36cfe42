package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/auth"
	"github.com/vyrodovalexey/itemtracker/internal/model"
)

// Auth returns a middleware that authenticates requests and rejects
// item changes from read-only callers. Probe paths and CORS preflight
// requests are not authenticated. WebSocket upgrades are authenticated
// like any other GET; the socket handler checks write access per command.
func Auth(authenticator auth.Authenticator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbePath(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			id, err := authenticator.Authenticate(r)
			if err != nil {
				logger.Warn("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeAuthError(w, http.StatusUnauthorized, err)
				return
			}

			if isWrite(r.Method) && !id.CanEdit() {
				logger.Warn("read-only caller attempted a change",
					zap.String("subject", id.Subject),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
				)
				writeAuthError(w, http.StatusForbidden, auth.ErrReadOnly)
				return
			}

			logger.Debug("authentication successful",
				zap.String("subject", id.Subject),
				zap.String("scheme", string(id.Scheme)),
				zap.Bool("read_only", id.ReadOnly),
				zap.String("path", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// writeAuthError writes a JSON error with a WWW-Authenticate challenge
// matching the failure.
func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Basic, API-Key")
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", `Basic realm="tracker"`)
	case errors.Is(err, auth.ErrInvalidAPIKey):
		w.Header().Set("WWW-Authenticate", "API-Key")
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Code:    status,
		Message: err.Error(),
	})
}
