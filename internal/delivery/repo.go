package delivery

import (
	"context"
	"time"

	"github.com/angelmondragon/marketplace-engine/internal/repo"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads order state for delivery projections. It never writes.
type Repository interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistory, error)
	ListDelivered(ctx context.Context, filter MetricsFilter) ([]deliveredOrder, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a read-only delivery repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

type deliveredOrder struct {
	ID                  uuid.UUID
	CreatedAt           time.Time
	DispatchedAt        *time.Time
	DeliveredAt         *time.Time
	EstimatedDeliveryAt *time.Time
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Preload("Items").Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistory, error) {
	var history []models.StatusHistory
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&history).Error
	return history, err
}

func (r *repository) ListDelivered(ctx context.Context, filter MetricsFilter) ([]deliveredOrder, error) {
	query := r.DB(ctx).
		Model(&models.Order{}).
		Select("id, created_at, dispatched_at, delivered_at, estimated_delivery_at").
		Where("delivered_at IS NOT NULL")
	if filter.From != nil {
		query = query.Where("delivered_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("delivered_at <= ?", filter.To.UTC())
	}
	if filter.Zone != "" {
		query = query.Where("zone = ?", filter.Zone)
	}
	if filter.DriverID != nil {
		query = query.Where("assigned_driver_id = ?", *filter.DriverID)
	}

	var rows []deliveredOrder
	if err := query.Order("delivered_at ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
