package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-engine/internal/bulk"
	"github.com/angelmondragon/marketplace-engine/internal/commission"
	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
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

// LedgerRecorder appends money movements inside the caller's transaction.
type LedgerRecorder interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// Notifier tells the requesting vendor about payout progress.
type Notifier interface {
	NotifyPayoutStatus(ctx context.Context, payout models.Payout, recipient uuid.UUID) error
}

// Service issues payouts against a company's available balance.
type Service interface {
	Balance(ctx context.Context, companyID uuid.UUID) (*Balance, error)
	CreatePayout(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Payout, error)
	UpdateStatus(ctx context.Context, principal auth.Principal, input UpdateStatusInput) (*models.Payout, error)
	BulkApprove(ctx context.Context, principal auth.Principal, ids []uuid.UUID) (bulk.Result, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[models.Payout], error)
}

// ServiceParams wires the payout service. Notifier, Metrics and Logger are
// optional.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Ledger     LedgerRecorder
	Calculator *commission.Calculator
	Notifier   Notifier
	Metrics    *metrics.Engine
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	ledger     LedgerRecorder
	calculator *commission.Calculator
	notifier   Notifier
	metrics    *metrics.Engine
	logg       *logger.Logger
	now        func() time.Time
}

// CreateInput requests a payout. When OrdersIncluded plus the carried credit
// fall short of AmountCents, the oldest unclaimed orders are claimed too.
type CreateInput struct {
	CompanyID      uuid.UUID
	AmountCents    int64
	Method         enums.PayoutMethod
	BankDetails    *models.BankDetails
	OrdersIncluded []uuid.UUID
	Notes          *string
}

type UpdateStatusInput struct {
	PayoutID uuid.UUID
	Status   enums.PayoutStatus
	Notes    *string
}

type ListParams struct {
	CompanyID *uuid.UUID
	Status    *enums.PayoutStatus
	Limit     int
	Cursor    string
}

// Balance is a company's payout position.
type Balance struct {
	CompanyID      uuid.UUID       `json:"companyId"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
	AvailableCents int64           `json:"availableCents"`
	EligibleOrders int             `json:"eligibleOrders"`
	CreditCents    int64           `json:"creditCents"`
	InFlightCents  int64           `json:"inFlightCents"`
	PaidOutCents   int64           `json:"paidOutCents"`
}

var payoutTransitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusPending:    {enums.PayoutStatusProcessing, enums.PayoutStatusCancelled},
	enums.PayoutStatusProcessing: {enums.PayoutStatusCompleted},
}

// CanTransition reports whether a payout may move from one status to another.
func CanTransition(from, to enums.PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateBankDetails is a structural check: every field must be non-blank.
func ValidateBankDetails(details *models.BankDetails) bool {
	if details == nil {
		return false
	}
	return strings.TrimSpace(details.AccountName) != "" &&
		strings.TrimSpace(details.AccountNumber) != "" &&
		strings.TrimSpace(details.BankName) != ""
}

// NewService builds the payout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("commission calculator required")
	}
	svc := &service{
		repo:       params.Repo,
		tx:         params.Tx,
		outbox:     params.Outbox,
		ledger:     params.Ledger,
		calculator: params.Calculator,
		notifier:   params.Notifier,
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

type netShare struct {
	OrderID  uuid.UUID
	NetCents int64
}

// available nets every unclaimed share at the company's rate and adds the
// surplus earlier payouts claimed beyond their amount. Each order is rounded
// on its own so claims and releases move the balance exactly.
func (s *service) available(ctx context.Context, repo Repository, company models.Company) ([]netShare, int64, int64, error) {
	rows, err := repo.UnclaimedShares(ctx, company.ID)
	if err != nil {
		return nil, 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unclaimed orders")
	}
	credit, err := repo.ClaimSurplus(ctx, company.ID)
	if err != nil {
		return nil, 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load claim surplus")
	}
	rate := s.calculator.RateFor(company)
	shares := make([]netShare, 0, len(rows))
	total := credit
	for _, row := range rows {
		split, err := commission.Calculate(row.RevenueCents, rate)
		if err != nil {
			return nil, 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "calculate commission")
		}
		shares = append(shares, netShare{OrderID: row.OrderID, NetCents: split.NetCents})
		total += split.NetCents
	}
	return shares, credit, total, nil
}

func (s *service) Balance(ctx context.Context, companyID uuid.UUID) (*Balance, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	company, err := s.repo.FindCompany(ctx, companyID)
	if err != nil {
		return nil, companyErr(err)
	}
	started := time.Now()
	shares, credit, total, err := s.available(ctx, s.repo, *company)
	if err != nil {
		return nil, err
	}
	sums, err := s.repo.SumByStatus(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payouts")
	}
	s.metrics.ObserveAggregation("payout_balance", time.Since(started))
	return &Balance{
		CompanyID:      companyID,
		CommissionRate: s.calculator.RateFor(*company),
		AvailableCents: total,
		EligibleOrders: len(shares),
		CreditCents:    credit,
		InFlightCents:  sums[enums.PayoutStatusPending] + sums[enums.PayoutStatusProcessing],
		PaidOutCents:   sums[enums.PayoutStatusCompleted],
	}, nil
}

func (s *service) CreatePayout(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Payout, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout method")
	}
	if input.Method == enums.PayoutMethodBankTransfer && !ValidateBankDetails(input.BankDetails) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank transfer requires account name, account number and bank name")
	}
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !principal.CanActForCompany(input.CompanyID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot request payouts for this company")
	}

	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		company, err := repo.LockCompany(ctx, input.CompanyID)
		if err != nil {
			return companyErr(err)
		}

		shares, credit, balance, err := s.available(ctx, repo, *company)
		if err != nil {
			return err
		}
		if input.AmountCents > balance {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance").WithDetails(map[string]any{
				"availableCents": balance,
				"requestedCents": input.AmountCents,
			})
		}

		claimed, claimedNet, err := selectClaims(shares, input.OrdersIncluded, input.AmountCents-credit)
		if err != nil {
			return err
		}

		now := s.now()
		payout = &models.Payout{
			ID:              uuid.New(),
			CompanyID:       company.ID,
			AmountCents:     input.AmountCents,
			ClaimedNetCents: claimedNet,
			Method:          input.Method,
			Status:          enums.PayoutStatusPending,
			BankDetails:     trimBankDetails(input.BankDetails),
			OrdersIncluded:  claimed,
			Notes:           trimNotes(input.Notes),
			RequestedBy:     principal.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		if _, err := repo.ClaimShares(ctx, company.ID, payout.ID, claimed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim orders")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.PayoutRequestedEvent{
				PayoutID:        payout.ID,
				CompanyID:       payout.CompanyID,
				AmountCents:     payout.AmountCents,
				ClaimedNetCents: payout.ClaimedNetCents,
				Method:          payout.Method,
				OrderIDs:        claimed,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance) {
			s.metrics.ObservePayout("rejected", input.AmountCents)
		}
		return nil, err
	}

	s.metrics.ObservePayout(string(payout.Status), payout.AmountCents)
	s.notify(ctx, *payout)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payout_id":      payout.ID.String(),
		"company_id":     payout.CompanyID.String(),
		"amount_cents":   payout.AmountCents,
		"claimed_orders": len(payout.OrdersIncluded),
	})
	s.logg.Info(logCtx, "payout requested")
	return payout, nil
}

// selectClaims takes the requested orders first, then tops up with the oldest
// remaining shares until the claimed net covers need. Whatever the claims net
// beyond the payout amount stays in the balance as credit.
func selectClaims(shares []netShare, requested []uuid.UUID, need int64) ([]uuid.UUID, int64, error) {
	byOrder := make(map[uuid.UUID]netShare, len(shares))
	for _, share := range shares {
		byOrder[share.OrderID] = share
	}

	taken := make(map[uuid.UUID]struct{}, len(requested))
	claimed := make([]uuid.UUID, 0, len(requested))
	var net int64
	var invalid []string
	for _, id := range requested {
		if _, dup := taken[id]; dup {
			continue
		}
		share, ok := byOrder[id]
		if !ok {
			invalid = append(invalid, id.String())
			continue
		}
		taken[id] = struct{}{}
		claimed = append(claimed, id)
		net += share.NetCents
	}
	if len(invalid) > 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "orders are not eligible for payout").WithDetails(map[string]any{
			"orderIds": invalid,
		})
	}

	for _, share := range shares {
		if net >= need {
			break
		}
		if _, ok := taken[share.OrderID]; ok {
			continue
		}
		taken[share.OrderID] = struct{}{}
		claimed = append(claimed, share.OrderID)
		net += share.NetCents
	}
	return claimed, net, nil
}

func (s *service) UpdateStatus(ctx context.Context, principal auth.Principal, input UpdateStatusInput) (*models.Payout, error) {
	if input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		payout *models.Payout
		from   enums.PayoutStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, input.PayoutID)
		if err != nil {
			return payoutErr(err)
		}
		from = current.Status
		if !CanTransition(from, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move payout from %s to %s", from, input.Status)
		}

		now := s.now()
		updates := map[string]any{"status": input.Status, "updated_at": now}
		current.Status = input.Status
		current.UpdatedAt = now
		if notes := trimNotes(input.Notes); notes != nil {
			updates["notes"] = *notes
			current.Notes = notes
		}

		switch input.Status {
		case enums.PayoutStatusProcessing:
			processedBy := principal.UserID
			updates["processed_by"] = processedBy
			updates["processed_at"] = now
			current.ProcessedBy = &processedBy
			current.ProcessedAt = &now
		case enums.PayoutStatusCompleted:
			updates["completed_at"] = now
			current.CompletedAt = &now
			if _, err := repo.MarkSharesPaid(ctx, current.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark orders paid out")
			}
			metadata, err := json.Marshal(map[string]any{
				"method":            current.Method,
				"order_ids":         current.OrdersIncluded.Strings(),
				"claimed_net_cents": current.ClaimedNetCents,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
			}
			companyID, payoutID := current.CompanyID, current.ID
			if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
				CompanyID:   &companyID,
				PayoutID:    &payoutID,
				ActorUserID: principal.UserID,
				Type:        enums.LedgerEventTypeVendorPayout,
				AmountCents: current.AmountCents,
				Metadata:    metadata,
			}); err != nil {
				return err
			}
		case enums.PayoutStatusCancelled:
			updates["cancelled_at"] = now
			current.CancelledAt = &now
			if _, err := repo.ReleaseShares(ctx, current.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release claimed orders")
			}
		}

		if err := repo.Update(ctx, current.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		payout = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutStatusChanged,
			AggregateType: enums.AggregatePayout,
			AggregateID:   current.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.PayoutStatusChangedEvent{
				PayoutID:    current.ID,
				CompanyID:   current.CompanyID,
				FromStatus:  from,
				ToStatus:    current.Status,
				AmountCents: current.AmountCents,
				OrderIDs:    current.OrdersIncluded,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePayout(string(payout.Status), payout.AmountCents)
	s.notify(ctx, *payout)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payout_id":   payout.ID.String(),
		"from_status": from,
		"to_status":   payout.Status,
	})
	s.logg.Info(logCtx, "payout status updated")
	return payout, nil
}

// BulkApprove moves each pending payout to processing on its own.
func (s *service) BulkApprove(ctx context.Context, principal auth.Principal, ids []uuid.UUID) (bulk.Result, error) {
	if len(ids) == 0 {
		return bulk.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "payout ids required")
	}
	result, errs := bulk.Run(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.UpdateStatus(ctx, principal, UpdateStatusInput{PayoutID: id, Status: enums.PayoutStatusProcessing})
		return err
	})
	if errs != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"updated_count": result.UpdatedCount,
			"failed_count":  result.FailedCount,
			"errors":        errs.Error(),
		})
		s.logg.Warn(logCtx, "bulk payout approval had failures")
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, payoutErr(err)
	}
	return payout, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[models.Payout], error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	page := pagination.Slice(rows, params.Limit, func(row models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &page, nil
}

func (s *service) notify(ctx context.Context, payout models.Payout) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPayoutStatus(ctx, payout, payout.RequestedBy); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"payout_id": payout.ID.String()})
		s.logg.Error(logCtx, "payout notification failed", err)
	}
}

func companyErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
}

func payoutErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
}

func trimBankDetails(details *models.BankDetails) *models.BankDetails {
	if details == nil {
		return nil
	}
	return &models.BankDetails{
		AccountName:   strings.TrimSpace(details.AccountName),
		AccountNumber: strings.TrimSpace(details.AccountNumber),
		BankName:      strings.TrimSpace(details.BankName),
	}
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
