package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Publisher fans a payload out to realtime subscribers of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Service persists in-app notifications and pushes realtime updates.
type Service interface {
	NotifyOrderStatus(ctx context.Context, order models.Order, from, to enums.OrderStatus) error
	NotifyPayoutStatus(ctx context.Context, payout models.Payout, recipient uuid.UUID) error
	List(ctx context.Context, params ListParams) (*pagination.Page[models.Notification], error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// OrderUpdate is the realtime payload for order status changes.
type OrderUpdate struct {
	Type       string            `json:"type"`
	OrderID    uuid.UUID         `json:"orderId"`
	FromStatus enums.OrderStatus `json:"fromStatus"`
	Status     enums.OrderStatus `json:"status"`
	Message    string            `json:"message"`
	Zone       string            `json:"zone"`
	DriverID   *uuid.UUID        `json:"driverId,omitempty"`
	At         time.Time         `json:"at"`
}

// PayoutUpdate is the realtime payload for payout status changes.
type PayoutUpdate struct {
	Type        string             `json:"type"`
	PayoutID    uuid.UUID          `json:"payoutId"`
	CompanyID   uuid.UUID          `json:"companyId"`
	Status      enums.PayoutStatus `json:"status"`
	AmountCents int64              `json:"amountCents"`
	At          time.Time          `json:"at"`
}

// NewService wires notifications dependencies. A nil publisher disables
// realtime fan-out.
func NewService(repo Repository, publisher Publisher) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// OrderStatusMessage is the human-readable text for a status change.
func OrderStatusMessage(to enums.OrderStatus) string {
	switch to {
	case enums.OrderStatusAccepted:
		return "Your order was accepted"
	case enums.OrderStatusPreparing:
		return "Your order is being prepared"
	case enums.OrderStatusOnTheWay:
		return "Your order is on the way"
	case enums.OrderStatusDelivered:
		return "Your order was delivered"
	case enums.OrderStatusCancelled:
		return "Your order was cancelled"
	default:
		return fmt.Sprintf("Your order is now %s", to.Label())
	}
}

// NotifyOrderStatus stores a notification for the purchaser and publishes the
// update to the user, zone, staff and driver topics. Every step is attempted;
// failures are combined.
func (s *service) NotifyOrderStatus(ctx context.Context, order models.Order, from, to enums.OrderStatus) error {
	now := s.now()
	message := OrderStatusMessage(to)
	orderID := order.ID

	var errs error
	notification := &models.Notification{
		ID:        uuid.New(),
		UserID:    order.UserID,
		OrderID:   &orderID,
		Type:      enums.NotificationTypeOrderStatus,
		Title:     enums.NotificationTypeOrderStatus.Title(),
		Message:   message,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("store notification: %w", err))
	}

	update := OrderUpdate{
		Type:       "order_status",
		OrderID:    order.ID,
		FromStatus: from,
		Status:     to,
		Message:    message,
		Zone:       order.Zone,
		DriverID:   order.AssignedDriverID,
		At:         now,
	}
	topics := []string{UserTopic(order.UserID), RoleTopic(enums.ActorRoleStaff)}
	if order.Zone != "" {
		topics = append(topics, ZoneTopic(order.Zone))
	}
	if order.AssignedDriverID != nil {
		topics = append(topics, DriverTopic(*order.AssignedDriverID))
	}
	errs = multierr.Append(errs, s.publish(ctx, topics, update))
	return errs
}

// NotifyPayoutStatus tells the requesting vendor user about a payout change.
func (s *service) NotifyPayoutStatus(ctx context.Context, payout models.Payout, recipient uuid.UUID) error {
	now := s.now()

	var errs error
	if recipient != uuid.Nil {
		notification := &models.Notification{
			ID:        uuid.New(),
			UserID:    recipient,
			Type:      enums.NotificationTypePayoutUpdate,
			Title:     enums.NotificationTypePayoutUpdate.Title(),
			Message:   fmt.Sprintf("Payout of %d is now %s", payout.AmountCents, payout.Status),
			CreatedAt: now,
		}
		if err := s.repo.Create(ctx, notification); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store notification: %w", err))
		}
	}

	update := PayoutUpdate{
		Type:        "payout_status",
		PayoutID:    payout.ID,
		CompanyID:   payout.CompanyID,
		Status:      payout.Status,
		AmountCents: payout.AmountCents,
		At:          now,
	}
	errs = multierr.Append(errs, s.publish(ctx, []string{CompanyTopic(payout.CompanyID), RoleTopic(enums.ActorRoleAdmin)}, update))
	return errs
}

func (s *service) publish(ctx context.Context, topics []string, payload any) error {
	if s.publisher == nil {
		return nil
	}
	var errs error
	for _, topic := range topics {
		if err := s.publisher.Publish(ctx, topic, payload); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("publish %s: %w", topic, err))
		}
	}
	return errs
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[models.Notification], error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      pagination.LimitWithBuffer(params.Limit),
		UnreadOnly: params.UnreadOnly,
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	page := pagination.Slice(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &page, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
