package models

import (
	"time"

	"github.com/google/uuid"
)

// CashCollection is the record of cash handed over for a COD order.
type CashCollection struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	CollectedBy uuid.UUID `gorm:"column:collected_by;type:uuid;not null"`
	RecordedBy  uuid.UUID `gorm:"column:recorded_by;type:uuid;not null"`
	CollectedAt time.Time `gorm:"column:collected_at;not null"`
	Verified    bool      `gorm:"column:verified;not null;default:false"`
	Notes       *string   `gorm:"column:notes;type:text"`
}
