package settlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-engine/internal/commission"
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/db"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service aggregates delivered revenue into persisted settlements.
type Service interface {
	CreateSettlement(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Settlement, error)
	Summary(ctx context.Context, input SummaryInput) (*Summary, error)
	VerifySettlement(ctx context.Context, principal auth.Principal, input VerifyInput) (*models.Settlement, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[models.Settlement], error)
}

// ServiceParams wires the settlement engine.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Calculator *commission.Calculator
	Metrics    *metrics.Engine
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	calculator *commission.Calculator
	metrics    *metrics.Engine
	logg       *logger.Logger
	now        func() time.Time
}

// CreateInput selects the company and the inclusive delivery period.
type CreateInput struct {
	CompanyID   uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Notes       *string
}

// SummaryInput bounds the dashboard summary by placement time.
type SummaryInput struct {
	CompanyID uuid.UUID
	Start     *time.Time
	End       *time.Time
}

// VerifyInput records the reviewer's sign-off.
type VerifyInput struct {
	SettlementID uuid.UUID
	Notes        *string
}

// ListParams filters and paginates settlements, newest first.
type ListParams struct {
	CompanyID *uuid.UUID
	Status    *enums.SettlementStatus
	Limit     int
	Cursor    string
}

// Totals is the money aggregation shared by settlements and summaries.
type Totals struct {
	TotalOrders          int64           `json:"totalOrders"`
	TotalRevenueCents    int64           `json:"totalRevenueCents"`
	TotalCommissionCents int64           `json:"totalCommissionCents"`
	TotalPayoutCents     int64           `json:"totalPayoutCents"`
	CashCollectedCents   int64           `json:"cashCollectedCents"`
	CashToRemitCents     int64           `json:"cashToRemitCents"`
	CommissionRate       decimal.Decimal `json:"commissionRate"`
}

// Summary is a read-only cash-flow view over every live order in a window.
// Totals cover all of them; Delivered repeats the figures for delivered
// orders alone.
type Summary struct {
	Totals

	Delivered         Totals     `json:"delivered"`
	CompanyID         uuid.UUID  `json:"companyId"`
	Start             *time.Time `json:"start,omitempty"`
	End               *time.Time `json:"end,omitempty"`
	ActiveOrders      int64      `json:"activeOrders"`
	PendingCashCents  int64      `json:"pendingCashCents"`
	PendingCashOrders int64      `json:"pendingCashOrders"`
	ToCollectCents    int64      `json:"toCollectCents"`
	ToCollectOrders   int64      `json:"toCollectOrders"`
}

// NewService builds the settlement engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("commission calculator required")
	}
	svc := &service{
		repo:       params.Repo,
		tx:         params.Tx,
		outbox:     params.Outbox,
		calculator: params.Calculator,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

// aggregate applies the commission split. Cash counts only paid COD shares.
func aggregate(shares []orderShare, rate decimal.Decimal) (Totals, error) {
	totals := Totals{CommissionRate: rate}
	for _, share := range shares {
		totals.TotalOrders++
		totals.TotalRevenueCents += share.RevenueCents
		if share.PaymentMethod.IsCashOnDelivery() && share.PaymentStatus == enums.PaymentStatusPaid {
			totals.CashCollectedCents += share.RevenueCents
		}
	}
	split, err := commission.Calculate(totals.TotalRevenueCents, rate)
	if err != nil {
		return Totals{}, err
	}
	totals.TotalCommissionCents = split.CommissionCents
	totals.TotalPayoutCents = split.NetCents
	totals.CashToRemitCents, err = commission.Of(totals.CashCollectedCents, rate)
	if err != nil {
		return Totals{}, err
	}
	return totals, nil
}

func (s *service) CreateSettlement(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Settlement, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period start and end required")
	}
	if !input.PeriodEnd.After(input.PeriodStart) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period end must be after period start")
	}
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	start := input.PeriodStart.UTC()
	end := input.PeriodEnd.UTC()

	var settlement *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		company, err := s.findCompany(ctx, repo, input.CompanyID)
		if err != nil {
			return err
		}
		exists, err := repo.ExistsForPeriod(ctx, company.ID, start, end)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing settlement")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "settlement already exists for this period")
		}

		started := time.Now()
		shares, err := repo.DeliveredShares(ctx, company.ID, start, end)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate delivered orders")
		}
		totals, err := aggregate(shares, s.calculator.RateFor(*company))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate commission")
		}
		s.metrics.ObserveAggregation("settlement", time.Since(started))

		now := s.now()
		settlement = &models.Settlement{
			ID:                   uuid.New(),
			CompanyID:            company.ID,
			PeriodStart:          start,
			PeriodEnd:            end,
			TotalOrders:          totals.TotalOrders,
			TotalRevenueCents:    totals.TotalRevenueCents,
			TotalCommissionCents: totals.TotalCommissionCents,
			TotalPayoutCents:     totals.TotalPayoutCents,
			CashCollectedCents:   totals.CashCollectedCents,
			CashToRemitCents:     totals.CashToRemitCents,
			CommissionRate:       totals.CommissionRate,
			Status:               enums.SettlementStatusPending,
			CreatedBy:            principal.UserID,
			Notes:                trimNotes(input.Notes),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := repo.Create(ctx, settlement); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "settlement already exists for this period")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCreated,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.SettlementCreatedEvent{
				SettlementID:         settlement.ID,
				CompanyID:            settlement.CompanyID,
				PeriodStart:          start,
				PeriodEnd:            end,
				TotalOrders:          settlement.TotalOrders,
				TotalRevenueCents:    settlement.TotalRevenueCents,
				TotalCommissionCents: settlement.TotalCommissionCents,
				TotalPayoutCents:     settlement.TotalPayoutCents,
				CashToRemitCents:     settlement.CashToRemitCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSettlementCreated()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"settlement_id": settlement.ID.String(),
		"company_id":    settlement.CompanyID.String(),
		"total_orders":  settlement.TotalOrders,
	})
	s.logg.Info(logCtx, "settlement created")
	return settlement, nil
}

func (s *service) Summary(ctx context.Context, input SummaryInput) (*Summary, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if input.Start != nil && input.End != nil && input.End.Before(*input.Start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must not be before start")
	}
	company, err := s.findCompany(ctx, s.repo, input.CompanyID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	shares, err := s.repo.PlacedShares(ctx, company.ID, input.Start, input.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate orders")
	}
	summary := &Summary{CompanyID: company.ID, Start: input.Start, End: input.End}
	delivered := make([]orderShare, 0, len(shares))
	for _, share := range shares {
		isDelivered := share.Status == enums.OrderStatusDelivered || share.Status == enums.OrderStatusCompleted
		if isDelivered {
			delivered = append(delivered, share)
		} else {
			summary.ActiveOrders++
		}
		if !share.PaymentMethod.IsCashOnDelivery() || share.PaymentStatus == enums.PaymentStatusPaid {
			continue
		}
		if isDelivered {
			summary.PendingCashOrders++
			summary.PendingCashCents += share.RevenueCents
		} else {
			summary.ToCollectOrders++
			summary.ToCollectCents += share.RevenueCents
		}
	}
	rate := s.calculator.RateFor(*company)
	if summary.Totals, err = aggregate(shares, rate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate commission")
	}
	if summary.Delivered, err = aggregate(delivered, rate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate commission")
	}
	s.metrics.ObserveAggregation("settlement_summary", time.Since(started))
	return summary, nil
}

func (s *service) VerifySettlement(ctx context.Context, principal auth.Principal, input VerifyInput) (*models.Settlement, error) {
	if input.SettlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var settlement *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, input.SettlementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
		}
		if current.Status != enums.SettlementStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "settlement is already %s", current.Status)
		}

		now := s.now()
		verifiedBy := principal.UserID
		updates := map[string]any{
			"status":      enums.SettlementStatusVerified,
			"verified_by": verifiedBy,
			"verified_at": now,
			"updated_at":  now,
		}
		current.Status = enums.SettlementStatusVerified
		current.VerifiedBy = &verifiedBy
		current.VerifiedAt = &now
		current.UpdatedAt = now
		if notes := trimNotes(input.Notes); notes != nil {
			updates["notes"] = *notes
			current.Notes = notes
		}
		if err := repo.Update(ctx, current.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify settlement")
		}
		settlement = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementVerified,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   current.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.SettlementVerifiedEvent{
				SettlementID: current.ID,
				CompanyID:    current.CompanyID,
				VerifiedBy:   verifiedBy,
				VerifiedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[models.Settlement], error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement status")
	}
	query := listParams{
		CompanyID: params.CompanyID,
		Status:    params.Status,
		Limit:     pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	page := pagination.Slice(rows, params.Limit, func(row models.Settlement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &page, nil
}

func (s *service) findCompany(ctx context.Context, repo Repository, id uuid.UUID) (*models.Company, error) {
	company, err := repo.FindCompany(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	return company, nil
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
