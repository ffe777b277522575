package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-engine/internal/bulk"
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
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

// ETAEstimator predicts when a dispatched order reaches its zone.
type ETAEstimator interface {
	Estimate(zone string, from time.Time) time.Time
}

// Notifier delivers user-facing status messages. Failures never roll back
// the transition.
type Notifier interface {
	NotifyOrderStatus(ctx context.Context, order models.Order, from, to enums.OrderStatus) error
}

// Service owns every mutation of an order's status and timestamps.
type Service interface {
	PlaceOrder(ctx context.Context, principal auth.Principal, input PlaceOrderInput) (*models.Order, error)
	Transition(ctx context.Context, principal auth.Principal, input TransitionInput) (*models.Order, error)
	BulkTransition(ctx context.Context, principal auth.Principal, input BulkTransitionInput) (bulk.Result, error)
	AssignDriver(ctx context.Context, principal auth.Principal, input AssignDriverInput) (*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistory, error)
}

// ServiceParams wires the order service. Notifier, Metrics and Logger are
// optional.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	ETA      ETAEstimator
	Notifier Notifier
	Metrics  *metrics.Engine
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	eta      ETAEstimator
	notifier Notifier
	metrics  *metrics.Engine
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.ETA == nil {
		return nil, fmt.Errorf("eta estimator required")
	}
	svc := &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		eta:      params.ETA,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) PlaceOrder(ctx context.Context, principal auth.Principal, input PlaceOrderInput) (*models.Order, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	customerID := principal.UserID
	if input.CustomerID != nil && *input.CustomerID != uuid.Nil {
		if !principal.IsOperator() && *input.CustomerID != principal.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot place orders for another customer")
		}
		customerID = *input.CustomerID
	}
	if err := validatePlacement(input); err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:               uuid.New(),
		UserID:           customerID,
		Status:           enums.OrderStatusPending,
		PaymentMethod:    input.PaymentMethod,
		PaymentStatus:    enums.PaymentStatusUnpaid,
		Zone:             strings.ToLower(strings.TrimSpace(input.Zone)),
		DeliveryFeeCents: input.DeliveryFeeCents,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	total := input.DeliveryFeeCents
	companies := make([]uuid.UUID, 0, len(input.Items))
	seen := map[uuid.UUID]struct{}{}
	for _, it := range input.Items {
		item := models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      it.ProductID,
			CompanyID:      it.CompanyID,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			DiscountCents:  it.DiscountCents,
			PayoutStatus:   enums.OrderPayoutStatusUnpaid,
			CreatedAt:      now,
		}
		total += item.RevenueCents()
		order.Items = append(order.Items, item)
		if _, ok := seen[it.CompanyID]; !ok {
			seen[it.CompanyID] = struct{}{}
			companies = append(companies, it.CompanyID)
		}
	}
	order.TotalCents = total

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.CountCompanies(ctx, companies)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load companies")
		}
		if found != int64(len(companies)) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		entry := &models.StatusHistory{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ToStatus:      enums.OrderStatusPending,
			ChangedBy:     principal.UserID,
			ChangedByRole: principal.Role,
			CreatedAt:     now,
		}
		if err := repo.AppendHistory(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.OrderPlacedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				CompanyIDs:    companies,
				Zone:          order.Zone,
				PaymentMethod: order.PaymentMethod,
				TotalCents:    order.TotalCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, *order, "", enums.OrderStatusPending)
	return order, nil
}

func validatePlacement(input PlaceOrderInput) error {
	if strings.TrimSpace(input.Zone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "zone required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.DeliveryFeeCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery fee must not be negative")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for i, it := range input.Items {
		switch {
		case it.ProductID == uuid.Nil:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: product id required", i)
		case it.CompanyID == uuid.Nil:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: company id required", i)
		case it.Quantity < 1:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be at least 1", i)
		case it.UnitPriceCents < 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: price must not be negative", i)
		case it.DiscountCents < 0 || it.DiscountCents > it.UnitPriceCents*it.Quantity:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: discount must be between 0 and the line amount", i)
		}
	}
	return nil
}

func (s *service) Transition(ctx context.Context, principal auth.Principal, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		order *models.Order
		from  enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		from = current.Status
		if err := checkTransition(principal, current, input.Status); err != nil {
			return err
		}
		if err := s.apply(ctx, tx, repo, principal, current, input.Status, input.Note, s.now()); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(from), string(input.Status), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.ObserveTransition(string(from), string(input.Status), "ok")
	s.notify(ctx, *order, from, order.Status)
	return order, nil
}

func (s *service) BulkTransition(ctx context.Context, principal auth.Principal, input BulkTransitionInput) (bulk.Result, error) {
	if len(input.OrderIDs) == 0 {
		return bulk.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order ids required")
	}
	if !input.Status.IsValid() {
		return bulk.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	result, errs := bulk.Run(ctx, input.OrderIDs, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Transition(ctx, principal, TransitionInput{OrderID: id, Status: input.Status, Note: input.Note})
		return err
	})
	if errs != nil {
		fields := map[string]any{
			"target_status": input.Status,
			"updated_count": result.UpdatedCount,
			"failed_count":  result.FailedCount,
			"errors":        errs.Error(),
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "bulk order transition partially failed")
	}
	return result, nil
}

// AssignDriver is the PREPARING -> ON_THE_WAY edge carrying a driver and ETA.
func (s *service) AssignDriver(ctx context.Context, principal auth.Principal, input AssignDriverInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.DriverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}
	if !principal.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff may assign drivers")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if current.Status != enums.OrderStatusPreparing {
			return pkgerrors.Newf(pkgerrors.CodePreconditionFailed, "driver can only be assigned while preparing, order is %s", current.Status.Label()).
				WithDetails(map[string]any{"status": current.Status})
		}

		now := s.now()
		eta := s.eta.Estimate(current.Zone, now)
		driverID := input.DriverID
		if err := repo.UpdateOrder(ctx, current.ID, map[string]any{
			"assigned_driver_id":    driverID,
			"estimated_delivery_at": eta,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign driver")
		}
		current.AssignedDriverID = &driverID
		current.EstimatedDeliveryAt = &eta

		if err := repo.CreateDriverAssignment(ctx, &models.DriverAssignment{
			ID:                  uuid.New(),
			OrderID:             current.ID,
			DriverID:            driverID,
			AssignedBy:          principal.UserID,
			Zone:                current.Zone,
			EstimatedDeliveryAt: eta,
			AssignedAt:          now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record driver assignment")
		}
		if err := s.apply(ctx, tx, repo, principal, current, enums.OrderStatusOnTheWay, input.Note, now); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDriverAssigned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         principal.ActorRef(),
			OccurredAt:    now,
			Data: payloads.DriverAssignedEvent{
				OrderID:             current.ID,
				DriverID:            driverID,
				Zone:                current.Zone,
				EstimatedDeliveryAt: eta,
			},
		}); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(enums.OrderStatusPreparing), string(enums.OrderStatusOnTheWay), string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.ObserveTransition(string(enums.OrderStatusPreparing), string(enums.OrderStatusOnTheWay), "ok")
	s.notify(ctx, *order, enums.OrderStatusPreparing, enums.OrderStatusOnTheWay)
	return order, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistory, error) {
	history, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	return history, nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// checkTransition validates the edge against the graph before the role
// filter, so a graph-invalid edge is reported as such for every role.
func checkTransition(principal auth.Principal, order *models.Order, to enums.OrderStatus) error {
	if !CanTransition(order.Status, to) {
		return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "invalid transition from %s to %s", order.Status, to).
			WithDetails(map[string]any{
				"from":    order.Status,
				"to":      to,
				"allowed": AllowedTransitions(order.Status),
			})
	}
	return Authorize(principal, order, to)
}

// apply stamps, persists, records history and queues the status event on tx.
func (s *service) apply(ctx context.Context, tx *gorm.DB, repo Repository, principal auth.Principal, order *models.Order, to enums.OrderStatus, note *string, now time.Time) error {
	from := order.Status
	updates := stamp(order, to, now)
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	fromStatus := from
	entry := &models.StatusHistory{
		ID:            uuid.New(),
		OrderID:       order.ID,
		FromStatus:    &fromStatus,
		ToStatus:      to,
		ChangedBy:     principal.UserID,
		ChangedByRole: principal.Role,
		Comment:       trimNote(note),
		CreatedAt:     now,
	}
	if err := repo.AppendHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         principal.ActorRef(),
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			FromStatus: from,
			ToStatus:   to,
			Zone:       order.Zone,
			Note:       entry.Comment,
			ChangedAt:  now,
		},
	})
}

func (s *service) notify(ctx context.Context, order models.Order, from, to enums.OrderStatus) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOrderStatus(ctx, order, from, to); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":  order.ID.String(),
			"to_status": to,
		})
		s.logg.Error(logCtx, "order notification failed", err)
	}
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
