package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

type payoutView struct {
	ID              uuid.UUID           `json:"id"`
	CompanyID       uuid.UUID           `json:"companyId"`
	AmountCents     int64               `json:"amountCents"`
	ClaimedNetCents int64               `json:"claimedNetCents"`
	Method          enums.PayoutMethod  `json:"method"`
	Status          enums.PayoutStatus  `json:"status"`
	BankDetails     *models.BankDetails `json:"bankDetails,omitempty"`
	OrdersIncluded  []uuid.UUID         `json:"ordersIncluded"`
	Notes           *string             `json:"notes,omitempty"`
	RequestedBy     uuid.UUID           `json:"requestedBy"`
	ProcessedBy     *uuid.UUID          `json:"processedBy,omitempty"`
	ProcessedAt     *time.Time          `json:"processedAt,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	CancelledAt     *time.Time          `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func newPayoutView(p models.Payout) payoutView {
	orders := []uuid.UUID(p.OrdersIncluded)
	if orders == nil {
		orders = []uuid.UUID{}
	}
	return payoutView{
		ID:              p.ID,
		CompanyID:       p.CompanyID,
		AmountCents:     p.AmountCents,
		ClaimedNetCents: p.ClaimedNetCents,
		Method:          p.Method,
		Status:          p.Status,
		BankDetails:     p.BankDetails,
		OrdersIncluded:  orders,
		Notes:           p.Notes,
		RequestedBy:     p.RequestedBy,
		ProcessedBy:     p.ProcessedBy,
		ProcessedAt:     p.ProcessedAt,
		CompletedAt:     p.CompletedAt,
		CancelledAt:     p.CancelledAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
