package orders

import (
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/google/uuid"
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

var vendorEdges = []edge{
	{enums.OrderStatusPending, enums.OrderStatusAccepted},
	{enums.OrderStatusPending, enums.OrderStatusCancelled},
	{enums.OrderStatusAccepted, enums.OrderStatusPreparing},
	{enums.OrderStatusAccepted, enums.OrderStatusCancelled},
}

func vendorMayMove(from, to enums.OrderStatus) bool {
	for _, e := range vendorEdges {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}

// Authorize applies the role filter to a graph-valid edge. Callers must
// check CanTransition first so that invalid edges never report FORBIDDEN.
func Authorize(p auth.Principal, order *models.Order, to enums.OrderStatus) error {
	from := order.Status
	switch {
	case p.IsOperator():
		return nil
	case p.Role == enums.ActorRoleVendor:
		if !vendorMayMove(from, to) {
			return forbidden(p.Role, from, to)
		}
		if p.CompanyID == nil || !orderHasCompany(order, *p.CompanyID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from your company")
		}
		return nil
	case p.Role == enums.ActorRoleDriver:
		if from != enums.OrderStatusOnTheWay || to != enums.OrderStatusDelivered {
			return forbidden(p.Role, from, to)
		}
		if order.AssignedDriverID == nil || *order.AssignedDriverID != p.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
		}
		return nil
	case p.Role == enums.ActorRoleCustomer:
		if from != enums.OrderStatusPending || to != enums.OrderStatusCancelled {
			return forbidden(p.Role, from, to)
		}
		if order.UserID != p.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to you")
		}
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role may not change order status")
}

func forbidden(role enums.ActorRole, from, to enums.OrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeForbidden, "%s may not move an order from %s to %s", role, from, to)
}

func orderHasCompany(order *models.Order, companyID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.CompanyID == companyID {
			return true
		}
	}
	return false
}
