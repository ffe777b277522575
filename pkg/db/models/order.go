package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

// Order is mutated only through the order state machine (status, timestamps),
// the cash ledger (payment fields) and driver assignment.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	Zone                string              `gorm:"column:zone;type:text;not null"`
	DeliveryFeeCents    int64               `gorm:"column:delivery_fee_cents;not null;default:0"`
	TotalCents          int64               `gorm:"column:total_cents;not null"`
	AssignedDriverID    *uuid.UUID          `gorm:"column:assigned_driver_id;type:uuid"`
	EstimatedDeliveryAt *time.Time          `gorm:"column:estimated_delivery_at"`
	AcceptedAt          *time.Time          `gorm:"column:accepted_at"`
	PreparingAt         *time.Time          `gorm:"column:preparing_at"`
	DispatchedAt        *time.Time          `gorm:"column:dispatched_at"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at"`
	PaidAt              *time.Time          `gorm:"column:paid_at"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

// OrderItem is a point-in-time snapshot of a purchased product. Payout fields
// track the owning company's claim on its share of the order.
type OrderItem struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	CompanyID      uuid.UUID               `gorm:"column:company_id;type:uuid;not null"`
	UnitPriceCents int64                   `gorm:"column:unit_price_cents;not null"`
	Quantity       int64                   `gorm:"column:quantity;not null"`
	DiscountCents  int64                   `gorm:"column:discount_cents;not null;default:0"`
	PayoutStatus   enums.OrderPayoutStatus `gorm:"column:payout_status;type:text;not null"`
	PayoutID       *uuid.UUID              `gorm:"column:payout_id;type:uuid"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// RevenueCents is price * quantity - discount.
func (i OrderItem) RevenueCents() int64 {
	return i.UnitPriceCents*i.Quantity - i.DiscountCents
}

// StatusHistory is the append-only audit trail of order transitions.
type StatusHistory struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	FromStatus    *enums.OrderStatus `gorm:"column:from_status;type:text"`
	ToStatus      enums.OrderStatus  `gorm:"column:to_status;type:text;not null"`
	ChangedBy     uuid.UUID          `gorm:"column:changed_by;type:uuid;not null"`
	ChangedByRole enums.ActorRole    `gorm:"column:changed_by_role;type:text;not null"`
	Comment       *string            `gorm:"column:comment;type:text"`
	CreatedAt     time.Time          `gorm:"column:created_at"`
}

func (StatusHistory) TableName() string { return "order_status_history" }

// DriverAssignment records each driver hand-off.
type DriverAssignment struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	DriverID            uuid.UUID `gorm:"column:driver_id;type:uuid;not null"`
	AssignedBy          uuid.UUID `gorm:"column:assigned_by;type:uuid;not null"`
	Zone                string    `gorm:"column:zone;type:text;not null"`
	EstimatedDeliveryAt time.Time `gorm:"column:estimated_delivery_at;not null"`
	AssignedAt          time.Time `gorm:"column:assigned_at;not null"`
}
