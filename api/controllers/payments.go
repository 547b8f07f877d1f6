package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/api/responses"
	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

type PaymentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*payments.Session, error)
}

func PaymentSessionFetch(svc PaymentReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "paymentSessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ps, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ps)
	}
}

// PaymentSessionAction runs process_payment, cancel_payment or retry_payment
// for the conversation session that owns the payment session's order.
func PaymentSessionAction(name string, svc PaymentReader, ordersSvc OrderService, fns FunctionRunner, locks SessionLocker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "paymentSessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ps, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := ordersSvc.GetOrder(r.Context(), ps.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := runLocked(r.Context(), locks, fns, order.SessionID, name,
			functions.PaymentRefParams{PaymentSessionID: id.String()})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeFunctionResponse(r.Context(), logg, w, http.StatusOK, resp)
	}
}
