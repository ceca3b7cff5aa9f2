package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-core/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-core/pkg/auth"
	"github.com/angelmondragon/storefront-core/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// SessionHeader carries the opaque anonymous session id used for cart ownership.
const SessionHeader = "X-Session-Id"

const maxSessionIDLength = 128

// Identify seeds the request context with the caller. A bearer token is
// optional, but one that is present must verify. The session header is
// captured for every request.
func Identify(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fields := map[string]any{}

			if session := strings.TrimSpace(r.Header.Get(SessionHeader)); session != "" {
				if len(session) > maxSessionIDLength {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id too long"))
					return
				}
				ctx = WithSessionID(ctx, session)
				fields["session_id"] = session
			}

			if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
				token := raw
				if strings.HasPrefix(strings.ToLower(token), "bearer ") {
					token = strings.TrimSpace(token[7:])
				}
				if token == "" {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}

				claims, err := pkgAuth.ParseAccessToken(cfg, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
					return
				}

				ctx = WithUserID(ctx, claims.UserID.String())
				ctx = WithRole(ctx, string(claims.Role))
				fields["user_id"] = claims.UserID.String()
				fields["actor_role"] = string(claims.Role)
			}

			if logg != nil && len(fields) > 0 {
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests that did not present a valid bearer token.
func RequireUser(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserIDFromContext(r.Context()) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
