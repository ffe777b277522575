package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Company is a vendor on the marketplace and the unit of settlement and payout.
type Company struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string              `gorm:"column:name;type:text;not null"`
	CommissionRate decimal.NullDecimal `gorm:"column:commission_rate;type:numeric(5,2)"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// RateOr returns the configured commission rate or fallback when unset.
func (c Company) RateOr(fallback decimal.Decimal) decimal.Decimal {
	if c.CommissionRate.Valid {
		return c.CommissionRate.Decimal
	}
	return fallback
}
