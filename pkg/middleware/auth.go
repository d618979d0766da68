package middleware

import (
	"errors"
	"net/http"
	"strings"

	"qrparking/pkg/auth"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/logger"
)

const authorizationTypeBearer = "bearer"

// Authenticate verifies the bearer token and stores the caller identity in
// the request context.
func Authenticate(verifier *auth.Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.Verify(bearerToken(r))
			if err != nil {
				log.Warn("Authentication failed",
					"request_id", RequestIDFrom(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				msg := "Invalid or expired token"
				if errors.Is(err, auth.ErrMissingToken) {
					msg = "Missing authorization header"
				}
				writeError(w, apperrors.Unauthorized(msg))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFrom(r.Context())
			if !ok || !id.IsAdmin() {
				log.Warn("Admin access denied",
					"request_id", RequestIDFrom(r.Context()),
					"user_id", id.UserID,
					"path", r.URL.Path,
				)
				writeError(w, apperrors.Forbidden("Admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) != 2 || strings.ToLower(fields[0]) != authorizationTypeBearer {
		return ""
	}
	return fields[1]
}
