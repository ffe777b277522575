package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/marketplace-engine/internal/repo"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for cash collections and ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CreateCashCollection(ctx context.Context, collection *models.CashCollection) error
	FindCashCollections(ctx context.Context, orderIDs []uuid.UUID) ([]models.CashCollection, error)
	Create(ctx context.Context, event *models.LedgerEvent) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	ListDeliveredCashOrders(ctx context.Context, filter cashOrderFilter) ([]models.Order, error)
}

type cashOrderFilter struct {
	CompanyID  *uuid.UUID
	Start      *time.Time
	End        *time.Time
	UnpaidOnly bool
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.Locked(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid flips an unpaid order to paid. It reports false when the
// order was already paid.
func (r *repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusUnpaid).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateCashCollection(ctx context.Context, collection *models.CashCollection) error {
	return r.DB(ctx).Create(collection).Error
}

func (r *repository) FindCashCollections(ctx context.Context, orderIDs []uuid.UUID) ([]models.CashCollection, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var collections []models.CashCollection
	err := r.DB(ctx).Where("order_id IN ?", orderIDs).Find(&collections).Error
	return collections, err
}

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	return r.DB(ctx).Create(event).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListDeliveredCashOrders returns delivered cash-on-delivery orders, oldest
// delivery first.
func (r *repository) ListDeliveredCashOrders(ctx context.Context, filter cashOrderFilter) ([]models.Order, error) {
	query := r.DB(ctx).
		Model(&models.Order{}).
		Where("payment_method = ?", enums.PaymentMethodCashOnDelivery).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted}).
		Where("delivered_at IS NOT NULL")
	if filter.CompanyID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.company_id = ?)", *filter.CompanyID)
	}
	if filter.Start != nil {
		query = query.Where("delivered_at >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		query = query.Where("delivered_at <= ?", filter.End.UTC())
	}
	if filter.UnpaidOnly {
		query = query.Where("payment_status = ?", enums.PaymentStatusUnpaid)
	}

	var orders []models.Order
	if err := query.Order("delivered_at ASC").Order("id ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
