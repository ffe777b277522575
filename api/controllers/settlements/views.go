package settlements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

type settlementView struct {
	ID                   uuid.UUID              `json:"id"`
	CompanyID            uuid.UUID              `json:"companyId"`
	PeriodStart          time.Time              `json:"periodStart"`
	PeriodEnd            time.Time              `json:"periodEnd"`
	TotalOrders          int64                  `json:"totalOrders"`
	TotalRevenueCents    int64                  `json:"totalRevenueCents"`
	TotalCommissionCents int64                  `json:"totalCommissionCents"`
	TotalPayoutCents     int64                  `json:"totalPayoutCents"`
	CashCollectedCents   int64                  `json:"cashCollectedCents"`
	CashToRemitCents     int64                  `json:"cashToRemitCents"`
	CommissionRate       decimal.Decimal        `json:"commissionRate"`
	Status               enums.SettlementStatus `json:"status"`
	CreatedBy            uuid.UUID              `json:"createdBy"`
	VerifiedBy           *uuid.UUID             `json:"verifiedBy,omitempty"`
	VerifiedAt           *time.Time             `json:"verifiedAt,omitempty"`
	Notes                *string                `json:"notes,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
}

func newSettlementView(s models.Settlement) settlementView {
	return settlementView{
		ID:                   s.ID,
		CompanyID:            s.CompanyID,
		PeriodStart:          s.PeriodStart,
		PeriodEnd:            s.PeriodEnd,
		TotalOrders:          s.TotalOrders,
		TotalRevenueCents:    s.TotalRevenueCents,
		TotalCommissionCents: s.TotalCommissionCents,
		TotalPayoutCents:     s.TotalPayoutCents,
		CashCollectedCents:   s.CashCollectedCents,
		CashToRemitCents:     s.CashToRemitCents,
		CommissionRate:       s.CommissionRate,
		Status:               s.Status,
		CreatedBy:            s.CreatedBy,
		VerifiedBy:           s.VerifiedBy,
		VerifiedAt:           s.VerifiedAt,
		Notes:                s.Notes,
		CreatedAt:            s.CreatedAt,
	}
}
