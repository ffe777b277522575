package orders

import (
	"time"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

// transitions is the only order lifecycle graph. Anything not listed is
// rejected with INVALID_TRANSITION.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusAccepted, enums.OrderStatusCancelled},
	enums.OrderStatusAccepted:  {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing: {enums.OrderStatusOnTheWay, enums.OrderStatusCancelled},
	enums.OrderStatusOnTheWay:  {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

// CanTransition reports whether to is an out-edge of from.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the out-edges of from. Terminal states have none.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	next := transitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// stamp applies the status and its timestamp(s) to order and returns the
// column updates to persist.
func stamp(order *models.Order, to enums.OrderStatus, now time.Time) map[string]any {
	at := now.UTC()
	updates := map[string]any{"status": to, "updated_at": at}
	order.Status = to
	order.UpdatedAt = at

	switch to {
	case enums.OrderStatusAccepted:
		order.AcceptedAt = &at
		updates["accepted_at"] = at
	case enums.OrderStatusPreparing:
		order.PreparingAt = &at
		updates["preparing_at"] = at
	case enums.OrderStatusOnTheWay:
		order.DispatchedAt = &at
		updates["dispatched_at"] = at
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &at
		order.CompletedAt = &at
		updates["delivered_at"] = at
		updates["completed_at"] = at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
		updates["cancelled_at"] = at
	}
	return updates
}
