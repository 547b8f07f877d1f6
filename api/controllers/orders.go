package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/api/middleware"
	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	"github.com/angelmondragon/voicecommerce-backend/api/validators"
	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/internal/orders"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

const maxReasonLen = 280

type OrderService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListSessionOrders(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, metadata map[string]any) (*models.Order, error)
}

func OrderFetch(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToDTO(order))
	}
}

// SessionOrders lists the session's orders, newest first.
func SessionOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := middleware.SessionIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id missing"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListSessionOrders(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(list) > limit {
			list = list[:limit]
		}
		out := make([]orders.OrderDTO, 0, len(list))
		for i := range list {
			out = append(out, orders.ToDTO(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=280"`
}

// OrderStatusUpdate moves an order along its status graph. The owning
// session is locked for the duration so a concurrent turn cannot observe a
// half-applied change.
func OrderStatusUpdate(svc OrderService, locks SessionLocker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status").
				WithDetails(map[string]any{"field": "status"}))
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unlock, err := locks.Lock(r.Context(), order.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "wait for session"))
			return
		}
		defer unlock()

		metadata := map[string]any{"source": "api"}
		if reason := validators.SanitizeString(payload.Reason, maxReasonLen); reason != "" {
			metadata["reason"] = reason
		}
		updated, err := svc.SetOrderStatus(r.Context(), orderID, status, metadata)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ToDTO(updated))
	}
}

// OrderPaymentSessionCreate opens a payment session for the order through
// the same function the conversation uses.
func OrderPaymentSessionCreate(svc OrderService, fns FunctionRunner, locks SessionLocker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := runLocked(r.Context(), locks, fns, order.SessionID, functions.CreatePaymentSession,
			functions.OrderRefParams{OrderID: orderID.String()})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeFunctionResponse(r.Context(), logg, w, http.StatusCreated, resp)
	}
}
