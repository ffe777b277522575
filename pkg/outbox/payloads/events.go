package payloads

import (
	"time"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/google/uuid"
)

// OrderPlacedEvent is emitted when an order and its items are created.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	UserID        uuid.UUID           `json:"user_id" validate:"required"`
	CompanyIDs    []uuid.UUID         `json:"company_ids"`
	Zone          string              `json:"zone"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalCents    int64               `json:"total_cents" validate:"gte=0"`
}

// OrderStatusChangedEvent is emitted for every accepted transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id" validate:"required"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status" validate:"required"`
	Zone       string            `json:"zone"`
	Note       *string           `json:"note,omitempty"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// DriverAssignedEvent is emitted when a driver takes a prepared order.
type DriverAssignedEvent struct {
	OrderID             uuid.UUID `json:"order_id" validate:"required"`
	DriverID            uuid.UUID `json:"driver_id" validate:"required"`
	Zone                string    `json:"zone"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`
}

// CashCollectedEvent is emitted once a COD order's cash is verified.
type CashCollectedEvent struct {
	OrderID          uuid.UUID `json:"order_id" validate:"required"`
	CashCollectionID uuid.UUID `json:"cash_collection_id" validate:"required"`
	AmountCents      int64     `json:"amount_cents" validate:"gte=0"`
	CollectedBy      uuid.UUID `json:"collected_by"`
	CollectedAt      time.Time `json:"collected_at"`
}

// SettlementCreatedEvent carries the persisted aggregation.
type SettlementCreatedEvent struct {
	SettlementID         uuid.UUID `json:"settlement_id" validate:"required"`
	CompanyID            uuid.UUID `json:"company_id" validate:"required"`
	PeriodStart          time.Time `json:"period_start"`
	PeriodEnd            time.Time `json:"period_end"`
	TotalOrders          int64     `json:"total_orders"`
	TotalRevenueCents    int64     `json:"total_revenue_cents"`
	TotalCommissionCents int64     `json:"total_commission_cents"`
	TotalPayoutCents     int64     `json:"total_payout_cents"`
	CashToRemitCents     int64     `json:"cash_to_remit_cents"`
}

type SettlementVerifiedEvent struct {
	SettlementID uuid.UUID `json:"settlement_id" validate:"required"`
	CompanyID    uuid.UUID `json:"company_id" validate:"required"`
	VerifiedBy   uuid.UUID `json:"verified_by"`
	VerifiedAt   time.Time `json:"verified_at"`
}

// PayoutRequestedEvent is emitted when a payout claims company balance.
type PayoutRequestedEvent struct {
	PayoutID        uuid.UUID          `json:"payout_id" validate:"required"`
	CompanyID       uuid.UUID          `json:"company_id" validate:"required"`
	AmountCents     int64              `json:"amount_cents" validate:"gt=0"`
	ClaimedNetCents int64              `json:"claimed_net_cents"`
	Method          enums.PayoutMethod `json:"method"`
	OrderIDs        []uuid.UUID        `json:"order_ids"`
}

type PayoutStatusChangedEvent struct {
	PayoutID    uuid.UUID          `json:"payout_id" validate:"required"`
	CompanyID   uuid.UUID          `json:"company_id" validate:"required"`
	FromStatus  enums.PayoutStatus `json:"from_status"`
	ToStatus    enums.PayoutStatus `json:"to_status" validate:"required"`
	AmountCents int64              `json:"amount_cents"`
	OrderIDs    []uuid.UUID        `json:"order_ids"`
}
