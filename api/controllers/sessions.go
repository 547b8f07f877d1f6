package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/api/middleware"
	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	"github.com/angelmondragon/voicecommerce-backend/api/validators"
	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/orchestrator"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

const (
	maxUserIDLen = 128
	maxInputLen  = 2000
)

type SessionService interface {
	Start(ctx context.Context, userID string) (*sessions.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Conversation runs customer turns.
type Conversation interface {
	HandleTranscript(ctx context.Context, sessionID uuid.UUID, tr orchestrator.Transcript) (*orchestrator.Turn, error)
	HandleIntent(ctx context.Context, sessionID uuid.UUID, text string) (*orchestrator.Turn, error)
	Shutdown(sessionID uuid.UUID)
}

type CartReader interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*cart.Cart, error)
}

type startSessionRequest struct {
	UserID string `json:"userId" validate:"omitempty,max=128"`
}

// SessionStart opens a conversation session.
func SessionStart(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload startSessionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		sess, err := svc.Start(r.Context(), validators.SanitizeString(payload.UserID, maxUserIDLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sess)
	}
}

func SessionFetch(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}
		sess, err := svc.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// SessionEnd drops the session and its conversation state.
func SessionEnd(svc SessionService, conv Conversation, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}
		if _, err := svc.Get(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if conv != nil {
			conv.Shutdown(sessionID)
		}
		if err := svc.Delete(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type transcriptRequest struct {
	Text       string    `json:"text" validate:"required"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
	IsFinal    bool      `json:"isFinal"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionTranscript feeds one speech recognition result into the
// conversation. Interim or low confidence results are accepted without
// starting a turn.
func SessionTranscript(svc SessionService, conv Conversation, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}

		var payload transcriptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Get(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		turn, err := conv.HandleTranscript(r.Context(), sessionID, orchestrator.Transcript{
			Text:       validators.SanitizeString(payload.Text, maxInputLen),
			Confidence: payload.Confidence,
			IsFinal:    payload.IsFinal,
			Timestamp:  payload.Timestamp,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if turn == nil {
			responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"sessionId": sessionID, "turn": false})
			return
		}
		responses.WriteSuccess(w, turn)
	}
}

type intentRequest struct {
	Text string `json:"text" validate:"required"`
}

// SessionIntent serves typed input through the rule-based path.
func SessionIntent(svc SessionService, conv Conversation, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}

		var payload intentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Get(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		turn, err := conv.HandleIntent(r.Context(), sessionID, validators.SanitizeString(payload.Text, maxInputLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, turn)
	}
}

func SessionCart(svc SessionService, carts CartReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}
		if _, err := svc.Get(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := carts.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, c)
	}
}
