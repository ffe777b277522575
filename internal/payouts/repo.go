package payouts

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

// Repository persists payouts and the order-item claims backing them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	LockCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	UnclaimedShares(ctx context.Context, companyID uuid.UUID) ([]claimableShare, error)
	ClaimShares(ctx context.Context, companyID, payoutID uuid.UUID, orderIDs []uuid.UUID) (int64, error)
	MarkSharesPaid(ctx context.Context, payoutID uuid.UUID) (int64, error)
	ReleaseShares(ctx context.Context, payoutID uuid.UUID) (int64, error)
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SumByStatus(ctx context.Context, companyID uuid.UUID) (map[enums.PayoutStatus]int64, error)
	ClaimSurplus(ctx context.Context, companyID uuid.UUID) (int64, error)
	List(ctx context.Context, params listParams) ([]models.Payout, error)
}

// claimableShare is a company's unclaimed revenue in one delivered order.
type claimableShare struct {
	OrderID      uuid.UUID
	DeliveredAt  time.Time
	RevenueCents int64
}

type listParams struct {
	CompanyID *uuid.UUID
	Status    *enums.PayoutStatus
	Limit     int
	Cursor    *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository returns a payouts repository bound to db.
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

// LockCompany serializes balance checks for one company until the
// surrounding transaction ends.
func (r *repository) LockCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.Locked(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// UnclaimedShares returns the company's unpaid-out revenue per delivered
// order, oldest delivery first.
func (r *repository) UnclaimedShares(ctx context.Context, companyID uuid.UUID) ([]claimableShare, error) {
	var rows []claimableShare
	err := r.DB(ctx).
		Table("orders AS o").
		Select(`o.id AS order_id, o.delivered_at AS delivered_at,
			CAST(COALESCE(SUM(oi.unit_price_cents * oi.quantity - oi.discount_cents), 0) AS BIGINT) AS revenue_cents`).
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Where("oi.company_id = ?", companyID).
		Where("oi.payout_status = ?", enums.OrderPayoutStatusUnpaid).
		Where("o.status IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted}).
		Where("o.delivered_at IS NOT NULL").
		Group("o.id, o.delivered_at").
		Order("o.delivered_at ASC").
		Order("o.id ASC").
		Scan(&rows).Error
	return rows, err
}

// ClaimShares marks the company's unpaid items in orderIDs as pending under
// payoutID.
func (r *repository) ClaimShares(ctx context.Context, companyID, payoutID uuid.UUID, orderIDs []uuid.UUID) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("company_id = ? AND order_id IN ? AND payout_status = ?", companyID, orderIDs, enums.OrderPayoutStatusUnpaid).
		Updates(map[string]any{
			"payout_status": enums.OrderPayoutStatusPending,
			"payout_id":     payoutID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkSharesPaid(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("payout_id = ? AND payout_status = ?", payoutID, enums.OrderPayoutStatusPending).
		Update("payout_status", enums.OrderPayoutStatusPaid)
	return res.RowsAffected, res.Error
}

// ReleaseShares returns a cancelled payout's claims to the unpaid pool.
func (r *repository) ReleaseShares(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.OrderItem{}).
		Where("payout_id = ? AND payout_status = ?", payoutID, enums.OrderPayoutStatusPending).
		Updates(map[string]any{
			"payout_status": enums.OrderPayoutStatusUnpaid,
			"payout_id":     nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.DB(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.DB(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.Locked(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).Model(&models.Payout{}).Where("id = ?", id).Updates(updates).Error
}

type statusSum struct {
	Status      enums.PayoutStatus
	AmountCents int64
}

func (r *repository) SumByStatus(ctx context.Context, companyID uuid.UUID) (map[enums.PayoutStatus]int64, error) {
	var rows []statusSum
	err := r.DB(ctx).
		Model(&models.Payout{}).
		Select("status, CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) AS amount_cents").
		Where("company_id = ?", companyID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.PayoutStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.AmountCents
	}
	return out, nil
}

// ClaimSurplus is the claimed net left over after the amounts of the
// company's live payouts. Cancelled payouts drop out along with their claims.
func (r *repository) ClaimSurplus(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var surplus int64
	err := r.DB(ctx).
		Model(&models.Payout{}).
		Select("CAST(COALESCE(SUM(claimed_net_cents - amount_cents), 0) AS BIGINT)").
		Where("company_id = ?", companyID).
		Where("status IN ?", []enums.PayoutStatus{
			enums.PayoutStatusPending,
			enums.PayoutStatusProcessing,
			enums.PayoutStatusCompleted,
		}).
		Scan(&surplus).Error
	return surplus, err
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Payout, error) {
	query := r.DB(ctx).Model(&models.Payout{})
	if params.CompanyID != nil {
		query = query.Where("company_id = ?", *params.CompanyID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	var rows []models.Payout
	err := repo.NewestFirst(query, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}
