package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

type orderItemView struct {
	ID             uuid.UUID               `json:"id"`
	ProductID      uuid.UUID               `json:"productId"`
	CompanyID      uuid.UUID               `json:"companyId"`
	UnitPriceCents int64                   `json:"unitPriceCents"`
	Quantity       int64                   `json:"quantity"`
	DiscountCents  int64                   `json:"discountCents"`
	RevenueCents   int64                   `json:"revenueCents"`
	PayoutStatus   enums.OrderPayoutStatus `json:"payoutStatus"`
}

type orderView struct {
	ID                  uuid.UUID           `json:"id"`
	UserID              uuid.UUID           `json:"userId"`
	Status              enums.OrderStatus   `json:"status"`
	PaymentMethod       enums.PaymentMethod `json:"paymentMethod"`
	PaymentStatus       enums.PaymentStatus `json:"paymentStatus"`
	Zone                string              `json:"zone"`
	DeliveryFeeCents    int64               `json:"deliveryFeeCents"`
	TotalCents          int64               `json:"totalCents"`
	AssignedDriverID    *uuid.UUID          `json:"assignedDriverId,omitempty"`
	EstimatedDeliveryAt *time.Time          `json:"estimatedDeliveryAt,omitempty"`
	DeliveredAt         *time.Time          `json:"deliveredAt,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
	Items               []orderItemView     `json:"items,omitempty"`
}

func newOrderView(order *models.Order) orderView {
	view := orderView{
		ID:                  order.ID,
		UserID:              order.UserID,
		Status:              order.Status,
		PaymentMethod:       order.PaymentMethod,
		PaymentStatus:       order.PaymentStatus,
		Zone:                order.Zone,
		DeliveryFeeCents:    order.DeliveryFeeCents,
		TotalCents:          order.TotalCents,
		AssignedDriverID:    order.AssignedDriverID,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		DeliveredAt:         order.DeliveredAt,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, orderItemView{
			ID:             item.ID,
			ProductID:      item.ProductID,
			CompanyID:      item.CompanyID,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			DiscountCents:  item.DiscountCents,
			RevenueCents:   item.RevenueCents(),
			PayoutStatus:   item.PayoutStatus,
		})
	}
	return view
}

type cashCollectionView struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"orderId"`
	AmountCents int64     `json:"amountCents"`
	CollectedBy uuid.UUID `json:"collectedBy"`
	RecordedBy  uuid.UUID `json:"recordedBy"`
	CollectedAt time.Time `json:"collectedAt"`
	Verified    bool      `json:"verified"`
	Notes       *string   `json:"notes,omitempty"`
}

func newCashCollectionView(c *models.CashCollection) cashCollectionView {
	return cashCollectionView{
		ID:          c.ID,
		OrderID:     c.OrderID,
		AmountCents: c.AmountCents,
		CollectedBy: c.CollectedBy,
		RecordedBy:  c.RecordedBy,
		CollectedAt: c.CollectedAt,
		Verified:    c.Verified,
		Notes:       c.Notes,
	}
}
