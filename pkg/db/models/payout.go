package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/marketplace-engine/pkg/db/types"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

// BankDetails is stored as JSON on the payout row.
type BankDetails struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
}

// Payout is a disbursement request against a company's available balance.
// ClaimedNetCents is the net value of the order shares the payout claimed.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID       uuid.UUID          `gorm:"column:company_id;type:uuid;not null"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	ClaimedNetCents int64              `gorm:"column:claimed_net_cents;not null;default:0"`
	Method          enums.PayoutMethod `gorm:"column:method;type:text;not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:text;not null"`
	BankDetails     *BankDetails       `gorm:"column:bank_details;type:jsonb;serializer:json"`
	OrdersIncluded  dbtypes.UUIDList   `gorm:"column:orders_included;type:uuid[]"`
	Notes           *string            `gorm:"column:notes;type:text"`
	RequestedBy     uuid.UUID          `gorm:"column:requested_by;type:uuid;not null"`
	ProcessedBy     *uuid.UUID         `gorm:"column:processed_by;type:uuid"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	CompletedAt     *time.Time         `gorm:"column:completed_at"`
	CancelledAt     *time.Time         `gorm:"column:cancelled_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
