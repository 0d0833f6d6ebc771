package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/api/responses"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

// userIDHeader carries the authenticated caller's id. The edge gateway
// terminates authentication and stamps this header; this service never sees
// credentials.
const userIDHeader = "X-User-Id"

type contextKey string

const userIDContextKey contextKey = "user_id"

// Identity requires a caller identity on every request it guards.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(userIDHeader)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
				return
			}
			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity malformed"))
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated caller id set by Identity.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return userID, ok
}

// WithUserID returns a context carrying the given caller id. Test helper and
// internal-call seam.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
