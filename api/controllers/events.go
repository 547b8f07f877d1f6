package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/api/middleware"
	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

const keepAliveInterval = 15 * time.Second

type EventSubscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan uisync.Envelope, error)
}

// SessionEvents streams the session's UI events as server-sent events until
// the client disconnects.
func SessionEvents(svc SessionService, bus EventSubscriber, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}
		if _, err := svc.Get(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := bus.Subscribe(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to session events"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case env, open := <-events:
				if !open {
					return
				}
				data, err := json.Marshal(env)
				if err != nil {
					if logg != nil {
						logg.Error(r.Context(), "session.events.encode_failed", err)
					}
					continue
				}
				fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", env.Seq, env.Type, data)
				flusher.Flush()
			}
		}
	}
}
