package settlements

import (
	"context"
	"time"

	"github.com/angelmondragon/marketplace-engine/internal/repo"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads order revenue per company and persists settlements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	DeliveredShares(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]orderShare, error)
	PlacedShares(ctx context.Context, companyID uuid.UUID, start, end *time.Time) ([]orderShare, error)
	ExistsForPeriod(ctx context.Context, companyID uuid.UUID, start, end time.Time) (bool, error)
	Create(ctx context.Context, settlement *models.Settlement) error
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, params listParams) ([]models.Settlement, error)
}

// orderShare is one order's revenue attributable to a single company.
type orderShare struct {
	OrderID       uuid.UUID
	Status        enums.OrderStatus
	PaymentMethod enums.PaymentMethod
	PaymentStatus enums.PaymentStatus
	RevenueCents  int64
}

type listParams struct {
	CompanyID *uuid.UUID
	Status    *enums.SettlementStatus
	Limit     int
	Cursor    *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository returns a settlements repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.DB(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *repository) shares(ctx context.Context, companyID uuid.UUID) *gorm.DB {
	return r.DB(ctx).
		Table("orders AS o").
		Select(`o.id AS order_id, o.status AS status, o.payment_method AS payment_method,
			o.payment_status AS payment_status,
			CAST(COALESCE(SUM(oi.unit_price_cents * oi.quantity - oi.discount_cents), 0) AS BIGINT) AS revenue_cents`).
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Where("oi.company_id = ?", companyID).
		Group("o.id, o.status, o.payment_method, o.payment_status")
}

// DeliveredShares returns the company's share of every order that reached
// delivery within [start, end].
func (r *repository) DeliveredShares(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]orderShare, error) {
	var rows []orderShare
	err := r.shares(ctx, companyID).
		Where("o.status IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted}).
		Where("o.delivered_at IS NOT NULL AND o.delivered_at >= ? AND o.delivered_at <= ?", start.UTC(), end.UTC()).
		Order("o.id").
		Scan(&rows).Error
	return rows, err
}

// PlacedShares returns the company's share of orders placed in the optional
// window, excluding cancelled and refunded orders.
func (r *repository) PlacedShares(ctx context.Context, companyID uuid.UUID, start, end *time.Time) ([]orderShare, error) {
	query := r.shares(ctx, companyID).
		Where("o.status NOT IN ?", []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusRefunded})
	if start != nil {
		query = query.Where("o.created_at >= ?", start.UTC())
	}
	if end != nil {
		query = query.Where("o.created_at <= ?", end.UTC())
	}
	var rows []orderShare
	err := query.Order("o.id").Scan(&rows).Error
	return rows, err
}

func (r *repository) ExistsForPeriod(ctx context.Context, companyID uuid.UUID, start, end time.Time) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Settlement{}).
		Where("company_id = ? AND period_start = ? AND period_end = ?", companyID, start.UTC(), end.UTC()).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.DB(ctx).Create(settlement).Error
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.Locked(ctx).Where("id = ?", id).First(&settlement).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Settlement{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Settlement, error) {
	query := r.DB(ctx).Model(&models.Settlement{})
	if params.CompanyID != nil {
		query = query.Where("company_id = ?", *params.CompanyID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	var rows []models.Settlement
	err := repo.NewestFirst(query, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}
