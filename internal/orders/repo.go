package orders

import (
	"context"

	"github.com/angelmondragon/marketplace-engine/internal/repo"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendHistory(ctx context.Context, entry *models.StatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistory, error)
	CreateDriverAssignment(ctx context.Context, assignment *models.DriverAssignment) error
	CountCompanies(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// CreateOrder inserts the order and its items. Run it inside a transaction.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	items := order.Items
	if err := r.DB(ctx).Omit("Items").Create(order).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderForUpdate locks the order row, then loads its items without
// extending the lock to them.
func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.Locked(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	if err := r.DB(ctx).Where("order_id = ?", id).Order("created_at ASC").Order("id ASC").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.StatusHistory) error {
	return r.DB(ctx).Create(entry).Error
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

func (r *repository) CreateDriverAssignment(ctx context.Context, assignment *models.DriverAssignment) error {
	return r.DB(ctx).Create(assignment).Error
}

func (r *repository) CountCompanies(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.DB(ctx).Model(&models.Company{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}
