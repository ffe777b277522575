package orders

import (
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/google/uuid"
)

// ItemInput is the point-in-time snapshot of a purchased product.
type ItemInput struct {
	ProductID      uuid.UUID
	CompanyID      uuid.UUID
	UnitPriceCents int64
	Quantity       int64
	DiscountCents  int64
}

// PlaceOrderInput describes a new order. CustomerID is only honored for
// operators placing an order on a customer's behalf.
type PlaceOrderInput struct {
	CustomerID       *uuid.UUID
	Zone             string
	PaymentMethod    enums.PaymentMethod
	DeliveryFeeCents int64
	Items            []ItemInput
}

// TransitionInput moves one order along the lifecycle graph.
type TransitionInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Note    *string
}

// BulkTransitionInput applies the same target status to many orders.
type BulkTransitionInput struct {
	OrderIDs []uuid.UUID
	Status   enums.OrderStatus
	Note     *string
}

// AssignDriverInput hands a prepared order to a driver.
type AssignDriverInput struct {
	OrderID  uuid.UUID
	DriverID uuid.UUID
	Note     *string
}
