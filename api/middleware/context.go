package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

type contextKey string

const ctxSessionID contextKey = "session_id"

// SessionIDFromContext returns the conversation session resolved by
// SessionScope.
func SessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	v, ok := ctx.Value(ctxSessionID).(uuid.UUID)
	return v, ok
}

func WithSessionID(ctx context.Context, sessionID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionID, sessionID)
}

// SessionScope parses the {sessionID} route parameter and tags the request
// context and its logs with it.
func SessionScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(chi.URLParam(r, "sessionID"))
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session id"))
				return
			}
			ctx := WithSessionID(r.Context(), id)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, id.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
