package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const sessionKey ctxKey = "session"

// APIKeyHeader carries the query surface key
const APIKeyHeader = "X-API-Key"

// TokenParser verifies a bearer token and returns its session
type TokenParser interface {
	Parse(token string) (domain.Session, error)
}

// WithSession stores an authenticated session in the context
func WithSession(ctx context.Context, sess domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session stored by SessionAuth
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(domain.Session)
	return sess, ok
}

// SessionAuth requires a valid "Authorization: Bearer <token>" header and
// puts the session into the request context
func SessionAuth(parser TokenParser, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "missing or malformed authorization header",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				apperrors.WriteError(w, apperrors.ErrUnauthorized)
				return
			}

			sess, err := parser.Parse(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "session token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apperrors.WriteError(w, apperrors.ErrUnauthorized)
				return
			}

			ctx = WithSession(ctx, sess)
			logger.DebugContext(ctx, "session authenticated",
				slog.String("email", sess.Email),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKey guards a route with a shared key in the X-API-Key header.
// An empty key disables the guard.
func APIKey(key string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				logger.WarnContext(r.Context(), "invalid api key",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apperrors.WriteError(w, apperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
