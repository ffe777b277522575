package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

// Settlement is a persisted snapshot of one company's period aggregation.
type Settlement struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID            uuid.UUID              `gorm:"column:company_id;type:uuid;not null"`
	PeriodStart          time.Time              `gorm:"column:period_start;not null"`
	PeriodEnd            time.Time              `gorm:"column:period_end;not null"`
	TotalOrders          int64                  `gorm:"column:total_orders;not null"`
	TotalRevenueCents    int64                  `gorm:"column:total_revenue_cents;not null"`
	TotalCommissionCents int64                  `gorm:"column:total_commission_cents;not null"`
	TotalPayoutCents     int64                  `gorm:"column:total_payout_cents;not null"`
	CashCollectedCents   int64                  `gorm:"column:cash_collected_cents;not null"`
	CashToRemitCents     int64                  `gorm:"column:cash_to_remit_cents;not null"`
	CommissionRate       decimal.Decimal        `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	Status               enums.SettlementStatus `gorm:"column:status;type:text;not null"`
	CreatedBy            uuid.UUID              `gorm:"column:created_by;type:uuid;not null"`
	VerifiedBy           *uuid.UUID             `gorm:"column:verified_by;type:uuid"`
	VerifiedAt           *time.Time             `gorm:"column:verified_at"`
	Notes                *string                `gorm:"column:notes;type:text"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
