package orders

import (
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

var statusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing: {enums.OrderStatusReady, enums.OrderStatusCancelled},
	enums.OrderStatusReady:     {enums.OrderStatusInTransit, enums.OrderStatusCompleted, enums.OrderStatusCancelled},
	enums.OrderStatusInTransit: {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	enums.OrderStatusDelivered: {enums.OrderStatusCompleted},
}

// CanTransition reports whether the status graph has an edge from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s enums.OrderStatus) []enums.OrderStatus {
	return append([]enums.OrderStatus(nil), statusTransitions[s]...)
}

func transitionError(from, to enums.OrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeOrderTransition, "order cannot move from %s to %s", from, to).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}
