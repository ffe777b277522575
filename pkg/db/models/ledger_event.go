package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

// LedgerEvent records an immutable money movement.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID   *uuid.UUID            `gorm:"column:company_id;type:uuid"`
	OrderID     *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	PayoutID    *uuid.UUID            `gorm:"column:payout_id;type:uuid"`
	ActorUserID uuid.UUID             `gorm:"column:actor_user_id;type:uuid;not null"`
	Type        enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
