package delivery

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes read-only delivery projections.
type Service interface {
	Tracking(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*Tracking, error)
	Metrics(ctx context.Context, filter MetricsFilter) (*Metrics, error)
}

// MetricsFilter narrows the delivered orders considered. From/To bound
// deliveredAt inclusively.
type MetricsFilter struct {
	From     *time.Time
	To       *time.Time
	Zone     string
	DriverID *uuid.UUID
}

// Metrics summarizes delivery performance.
type Metrics struct {
	DeliveredCount     int64   `json:"deliveredCount"`
	WithEstimateCount  int64   `json:"withEstimateCount"`
	OnTimeCount        int64   `json:"onTimeCount"`
	OnTimeRate         float64 `json:"onTimeRate"`
	AvgDeliveryMinutes float64 `json:"avgDeliveryMinutes"`
	AvgTransitMinutes  float64 `json:"avgTransitMinutes"`
}

// Tracking is the customer-facing view of an order's progress.
type Tracking struct {
	OrderID             uuid.UUID         `json:"orderId"`
	Status              enums.OrderStatus `json:"status"`
	StatusLabel         string            `json:"statusLabel"`
	Zone                string            `json:"zone"`
	AssignedDriverID    *uuid.UUID        `json:"assignedDriverId,omitempty"`
	EstimatedDeliveryAt *time.Time        `json:"estimatedDeliveryAt,omitempty"`
	ExpectedMinutes     int               `json:"expectedMinutes"`
	Timestamps          Timestamps        `json:"timestamps"`
	History             []HistoryEntry    `json:"history"`
}

// Timestamps mirrors the per-state stamps on the order.
type Timestamps struct {
	PlacedAt     time.Time  `json:"placedAt"`
	AcceptedAt   *time.Time `json:"acceptedAt,omitempty"`
	PreparingAt  *time.Time `json:"preparingAt,omitempty"`
	DispatchedAt *time.Time `json:"dispatchedAt,omitempty"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
}

// HistoryEntry is one recorded transition.
type HistoryEntry struct {
	FromStatus *enums.OrderStatus `json:"fromStatus,omitempty"`
	ToStatus   enums.OrderStatus  `json:"toStatus"`
	ChangedBy  uuid.UUID          `json:"changedBy"`
	Role       enums.ActorRole    `json:"role"`
	Comment    *string            `json:"comment,omitempty"`
	At         time.Time          `json:"at"`
}

type service struct {
	repo    Repository
	zones   *ZoneTable
	metrics *metrics.Engine
}

// NewService wires the delivery projections. metrics may be nil.
func NewService(repo Repository, zones *ZoneTable, engineMetrics *metrics.Engine) (Service, error) {
	if repo == nil {
		return nil, errors.New("delivery repository required")
	}
	if zones == nil {
		return nil, errors.New("zone table required")
	}
	return &service{repo: repo, zones: zones, metrics: engineMetrics}, nil
}

func (s *service) Tracking(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*Tracking, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !canView(principal, order) {
		// hide existence from unrelated callers
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	history, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}

	tracking := &Tracking{
		OrderID:             order.ID,
		Status:              order.Status,
		StatusLabel:         order.Status.Label(),
		Zone:                order.Zone,
		AssignedDriverID:    order.AssignedDriverID,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		ExpectedMinutes:     int(s.zones.Duration(order.Zone) / time.Minute),
		Timestamps: Timestamps{
			PlacedAt:     order.CreatedAt,
			AcceptedAt:   order.AcceptedAt,
			PreparingAt:  order.PreparingAt,
			DispatchedAt: order.DispatchedAt,
			DeliveredAt:  order.DeliveredAt,
			CompletedAt:  order.CompletedAt,
			CancelledAt:  order.CancelledAt,
		},
		History: make([]HistoryEntry, 0, len(history)),
	}
	for _, h := range history {
		tracking.History = append(tracking.History, HistoryEntry{
			FromStatus: h.FromStatus,
			ToStatus:   h.ToStatus,
			ChangedBy:  h.ChangedBy,
			Role:       h.ChangedByRole,
			Comment:    h.Comment,
			At:         h.CreatedAt,
		})
	}
	return tracking, nil
}

func canView(p auth.Principal, order *models.Order) bool {
	switch {
	case p.IsOperator():
		return true
	case p.Role == enums.ActorRoleCustomer:
		return order.UserID == p.UserID
	case p.Role == enums.ActorRoleDriver:
		return order.AssignedDriverID != nil && *order.AssignedDriverID == p.UserID
	case p.Role == enums.ActorRoleVendor:
		if p.CompanyID == nil {
			return false
		}
		for _, item := range order.Items {
			if item.CompanyID == *p.CompanyID {
				return true
			}
		}
	}
	return false
}

func (s *service) Metrics(ctx context.Context, filter MetricsFilter) (*Metrics, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	filter.Zone = NormalizeZone(filter.Zone)

	started := time.Now()
	rows, err := s.repo.ListDelivered(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivered orders")
	}
	s.metrics.ObserveAggregation("delivery_metrics", time.Since(started))

	return summarize(rows), nil
}

func summarize(rows []deliveredOrder) *Metrics {
	out := &Metrics{}
	var (
		deliveryTotal time.Duration
		transitTotal  time.Duration
		transitCount  int64
	)
	for _, row := range rows {
		if row.DeliveredAt == nil {
			continue
		}
		out.DeliveredCount++
		deliveryTotal += row.DeliveredAt.Sub(row.CreatedAt)
		if row.DispatchedAt != nil {
			transitTotal += row.DeliveredAt.Sub(*row.DispatchedAt)
			transitCount++
		}
		if row.EstimatedDeliveryAt != nil {
			out.WithEstimateCount++
			if !row.DeliveredAt.After(*row.EstimatedDeliveryAt) {
				out.OnTimeCount++
			}
		}
	}
	if out.WithEstimateCount > 0 {
		out.OnTimeRate = round(float64(out.OnTimeCount)/float64(out.WithEstimateCount), 4)
	}
	if out.DeliveredCount > 0 {
		out.AvgDeliveryMinutes = round(deliveryTotal.Minutes()/float64(out.DeliveredCount), 2)
	}
	if transitCount > 0 {
		out.AvgTransitMinutes = round(transitTotal.Minutes()/float64(transitCount), 2)
	}
	return out
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
