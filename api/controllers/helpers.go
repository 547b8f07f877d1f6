package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

// FunctionRunner executes a named business function for a session.
type FunctionRunner interface {
	Handle(ctx context.Context, sessionID uuid.UUID, call functions.Call) functions.Response
}

// SessionLocker serializes work on one conversation session.
type SessionLocker interface {
	Lock(ctx context.Context, id uuid.UUID) (func(), error)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// runLocked dispatches one function call while holding the session lock so
// API mutations and conversation turns never interleave.
func runLocked(ctx context.Context, locks SessionLocker, fns FunctionRunner, sessionID uuid.UUID, name string, params any) (functions.Response, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return functions.Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode function parameters")
	}
	unlock, err := locks.Lock(ctx, sessionID)
	if err != nil {
		return functions.Response{}, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "wait for session")
	}
	defer unlock()
	return fns.Handle(ctx, sessionID, functions.Call{ID: uuid.NewString(), Name: name, Parameters: raw}), nil
}

func writeFunctionResponse(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, resp functions.Response) {
	if resp.Error != nil {
		err := pkgerrors.New(resp.Error.Code, resp.Error.Message)
		if resp.Error.Details != nil {
			err = err.WithDetails(resp.Error.Details)
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, resp.Result)
}
