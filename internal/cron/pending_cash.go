package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

type pendingCashLister interface {
	PendingCashCollections(ctx context.Context, companyID *uuid.UUID) ([]ledger.PendingCash, error)
}

// PendingCashAuditJob warns about delivered cash orders whose collection has
// not been recorded within the grace period.
type PendingCashAuditJob struct {
	logg   *logger.Logger
	ledger pendingCashLister
	grace  time.Duration
	now    func() time.Time
}

func NewPendingCashAuditJob(logg *logger.Logger, lister pendingCashLister, grace time.Duration) (*PendingCashAuditJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if lister == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &PendingCashAuditJob{logg: logg, ledger: lister, grace: grace, now: time.Now}, nil
}

func (j *PendingCashAuditJob) Name() string { return "pending-cash-audit" }

func (j *PendingCashAuditJob) Run(ctx context.Context) error {
	pending, err := j.ledger.PendingCashCollections(ctx, nil)
	if err != nil {
		return fmt.Errorf("pending cash audit: %w", err)
	}

	cutoff := j.now().UTC().Add(-j.grace)
	var (
		overdue      int
		overdueCents int64
	)
	for _, p := range pending {
		if p.DeliveredAt.After(cutoff) {
			continue
		}
		overdue++
		overdueCents += p.TotalCents
		fields := map[string]any{
			"order_id":     p.OrderID.String(),
			"zone":         p.Zone,
			"total_cents":  p.TotalCents,
			"days_pending": p.DaysPending,
		}
		if p.AssignedDriverID != nil {
			fields["driver_id"] = p.AssignedDriverID.String()
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "cash collection overdue")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"pending":       len(pending),
		"overdue":       overdue,
		"overdue_cents": overdueCents,
	}), "pending cash audit complete")
	return nil
}
