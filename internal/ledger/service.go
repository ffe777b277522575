package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/db"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the cash collection ledger. It alone changes an order's
// payment status.
type Service interface {
	RecordCashCollection(ctx context.Context, principal auth.Principal, input RecordCashInput) (*models.CashCollection, error)
	ReconcileCash(ctx context.Context, filter ReconcileFilter) (*Reconciliation, error)
	PendingCashCollections(ctx context.Context, companyID *uuid.UUID) ([]PendingCash, error)
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

// ServiceParams wires the ledger. ToleranceCents is the largest accepted
// difference between collected cash and the order total.
type ServiceParams struct {
	Repo           Repository
	Tx             txRunner
	Outbox         outboxPublisher
	ToleranceCents int64
	Metrics        *metrics.Engine
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	tolerance int64
	metrics   *metrics.Engine
	logg      *logger.Logger
	now       func() time.Time
}

// RecordCashInput is a driver or staff report of cash received.
type RecordCashInput struct {
	OrderID     uuid.UUID
	AmountCents int64
	CollectedBy uuid.UUID
	Notes       *string
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	CompanyID   *uuid.UUID            `json:"company_id,omitempty"`
	OrderID     *uuid.UUID            `json:"order_id,omitempty"`
	PayoutID    *uuid.UUID            `json:"payout_id,omitempty"`
	ActorUserID uuid.UUID             `json:"actor_user_id"`
	Type        enums.LedgerEventType `json:"type"`
	AmountCents int64                 `json:"amount_cents"`
	Metadata    json.RawMessage       `json:"metadata,omitempty"`
}

// ReconcileFilter bounds the reconciliation report by delivery time.
type ReconcileFilter struct {
	CompanyID *uuid.UUID
	Start     *time.Time
	End       *time.Time
}

// ReconciliationEntry is one delivered cash order.
type ReconciliationEntry struct {
	OrderID          uuid.UUID           `json:"orderId"`
	TotalCents       int64               `json:"totalCents"`
	DeliveredAt      time.Time           `json:"deliveredAt"`
	PaymentStatus    enums.PaymentStatus `json:"paymentStatus"`
	Verified         bool                `json:"verified"`
	CollectedCents   int64               `json:"collectedCents"`
	DiscrepancyCents int64               `json:"discrepancyCents"`
}

// Reconciliation is the cash position over delivered COD orders.
type Reconciliation struct {
	Entries               []ReconciliationEntry `json:"entries"`
	TotalOrders           int                   `json:"totalOrders"`
	VerifiedCount         int                   `json:"verifiedCount"`
	TotalExpectedCents    int64                 `json:"totalExpectedCents"`
	TotalCollectedCents   int64                 `json:"totalCollectedCents"`
	TotalDiscrepancyCents int64                 `json:"totalDiscrepancyCents"`
}

// PendingCash is a delivered COD order whose cash has not been recorded.
type PendingCash struct {
	OrderID          uuid.UUID  `json:"orderId"`
	UserID           uuid.UUID  `json:"userId"`
	Zone             string     `json:"zone"`
	TotalCents       int64      `json:"totalCents"`
	AssignedDriverID *uuid.UUID `json:"assignedDriverId,omitempty"`
	DeliveredAt      time.Time  `json:"deliveredAt"`
	DaysPending      int        `json:"daysPending"`
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.ToleranceCents < 0 {
		return nil, fmt.Errorf("cash tolerance must not be negative")
	}
	svc := &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		tolerance: params.ToleranceCents,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) RecordCashCollection(ctx context.Context, principal auth.Principal, input RecordCashInput) (*models.CashCollection, error) {
	collection, err := s.recordCashCollection(ctx, principal, input)
	if err != nil {
		s.metrics.ObserveCashCollection(string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.ObserveCashCollection("ok")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     collection.OrderID.String(),
		"amount_cents": collection.AmountCents,
	})
	s.logg.Info(logCtx, "cash collection recorded")
	return collection, nil
}

func (s *service) recordCashCollection(ctx context.Context, principal auth.Principal, input RecordCashInput) (*models.CashCollection, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	collectedBy := input.CollectedBy
	if collectedBy == uuid.Nil {
		collectedBy = principal.UserID
	}
	if principal.Role == enums.ActorRoleDriver && collectedBy != principal.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "drivers can only record their own collections")
	}

	var collection *models.CashCollection
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if principal.Role == enums.ActorRoleDriver && (order.AssignedDriverID == nil || *order.AssignedDriverID != principal.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
		}
		if !order.PaymentMethod.IsCashOnDelivery() {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed, "cash can only be collected for cash-on-delivery orders")
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed, "order must be delivered first").
				WithDetails(map[string]any{"status": order.Status})
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeConflict, "cash already collected for this order")
		}
		// The ledger is append-only, so an earlier collection survives a
		// payment status that was reset by hand.
		collected, err := hasEvent(ctx, repo, order.ID, enums.LedgerEventTypeCashCollected)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger")
		}
		if collected {
			return pkgerrors.New(pkgerrors.CodeConflict, "cash already collected for this order")
		}
		if diff := input.AmountCents - order.TotalCents; abs(diff) > s.tolerance {
			return pkgerrors.Newf(pkgerrors.CodeAmountMismatch, "collected %d does not match order total %d", input.AmountCents, order.TotalCents).
				WithDetails(map[string]any{
					"expectedCents":   order.TotalCents,
					"receivedCents":   input.AmountCents,
					"differenceCents": diff,
				})
		}

		now := s.now()
		updated, err := repo.MarkOrderPaid(ctx, order.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "cash already collected for this order")
		}

		collection = &models.CashCollection{
			ID:          uuid.New(),
			OrderID:     order.ID,
			AmountCents: input.AmountCents,
			CollectedBy: collectedBy,
			RecordedBy:  principal.UserID,
			CollectedAt: now,
			Verified:    true,
			Notes:       trimNotes(input.Notes),
		}
		if err := repo.CreateCashCollection(ctx, collection); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "cash already collected for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cash collection")
		}

		metadata, err := json.Marshal(map[string]any{
			"cash_collection_id": collection.ID,
			"collected_by":       collectedBy,
			"expected_cents":     order.TotalCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
		}
		orderID := order.ID
		if _, err := s.RecordEvent(ctx, tx, RecordLedgerEventInput{
			OrderID:     &orderID,
			ActorUserID: principal.UserID,
			Type:        enums.LedgerEventTypeCashCollected,
			AmountCents: input.AmountCents,
			Metadata:    metadata,
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashCollected,
			AggregateType: enums.AggregateCashCollection,
			AggregateID:   collection.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.CashCollectedEvent{
				OrderID:          order.ID,
				CashCollectionID: collection.ID,
				AmountCents:      collection.AmountCents,
				CollectedBy:      collectedBy,
				CollectedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return collection, nil
}

func (s *service) ReconcileCash(ctx context.Context, filter ReconcileFilter) (*Reconciliation, error) {
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must not be before start")
	}
	started := time.Now()
	orders, err := s.repo.ListDeliveredCashOrders(ctx, cashOrderFilter{
		CompanyID: filter.CompanyID,
		Start:     filter.Start,
		End:       filter.End,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivered cash orders")
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	collections, err := s.repo.FindCashCollections(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash collections")
	}
	byOrder := make(map[uuid.UUID]models.CashCollection, len(collections))
	for _, c := range collections {
		byOrder[c.OrderID] = c
	}

	report := &Reconciliation{Entries: make([]ReconciliationEntry, 0, len(orders))}
	for _, order := range orders {
		entry := ReconciliationEntry{
			OrderID:       order.ID,
			TotalCents:    order.TotalCents,
			DeliveredAt:   *order.DeliveredAt,
			PaymentStatus: order.PaymentStatus,
		}
		if c, ok := byOrder[order.ID]; ok {
			entry.Verified = c.Verified
			entry.CollectedCents = c.AmountCents
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			entry.DiscrepancyCents = order.TotalCents
		}
		report.Entries = append(report.Entries, entry)
		report.TotalOrders++
		if entry.Verified {
			report.VerifiedCount++
		}
		report.TotalExpectedCents += entry.TotalCents
		report.TotalCollectedCents += entry.CollectedCents
		report.TotalDiscrepancyCents += entry.DiscrepancyCents
	}
	s.metrics.ObserveAggregation("cash_reconciliation", time.Since(started))
	return report, nil
}

func (s *service) PendingCashCollections(ctx context.Context, companyID *uuid.UUID) ([]PendingCash, error) {
	orders, err := s.repo.ListDeliveredCashOrders(ctx, cashOrderFilter{CompanyID: companyID, UnpaidOnly: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending cash orders")
	}
	now := s.now()
	out := make([]PendingCash, 0, len(orders))
	for _, order := range orders {
		out = append(out, PendingCash{
			OrderID:          order.ID,
			UserID:           order.UserID,
			Zone:             order.Zone,
			TotalCents:       order.TotalCents,
			AssignedDriverID: order.AssignedDriverID,
			DeliveredAt:      *order.DeliveredAt,
			DaysPending:      daysBetween(*order.DeliveredAt, now),
		})
	}
	return out, nil
}

// RecordEvent appends a ledger event on tx, or on the repository's own
// connection when tx is nil.
func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid ledger event type %q", input.Type)
	}
	switch input.Type.RequiredReference() {
	case "order":
		if input.OrderID == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s ledger event needs an order reference", input.Type)
		}
	case "payout":
		if input.PayoutID == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s ledger event needs a payout reference", input.Type)
		}
	default:
		if input.OrderID == nil && input.CompanyID == nil && input.PayoutID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger event needs an order, company or payout reference")
		}
	}

	event := &models.LedgerEvent{
		ID:          uuid.New(),
		CompanyID:   input.CompanyID,
		OrderID:     input.OrderID,
		PayoutID:    input.PayoutID,
		ActorUserID: input.ActorUserID,
		Type:        input.Type,
		AmountCents: input.AmountCents,
		Metadata:    input.Metadata,
		CreatedAt:   s.now(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger event")
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	return hasEvent(ctx, s.repo, orderID, eventType)
}

func hasEvent(ctx context.Context, repo Repository, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	events, err := repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
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
