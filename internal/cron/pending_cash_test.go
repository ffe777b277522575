package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-engine/internal/ledger"
)

type fakePendingCash struct {
	rows      []ledger.PendingCash
	err       error
	companyID *uuid.UUID
	calls     int
}

func (f *fakePendingCash) PendingCashCollections(_ context.Context, companyID *uuid.UUID) ([]ledger.PendingCash, error) {
	f.calls++
	f.companyID = companyID
	return f.rows, f.err
}

func TestPendingCashAuditScansAllCompanies(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	driver := uuid.New()
	lister := &fakePendingCash{rows: []ledger.PendingCash{
		{OrderID: uuid.New(), TotalCents: 2500, DeliveredAt: now.Add(-48 * time.Hour), AssignedDriverID: &driver, DaysPending: 2},
		{OrderID: uuid.New(), TotalCents: 1200, DeliveredAt: now.Add(-time.Hour)},
	}}
	job, err := NewPendingCashAuditJob(testLogger(), lister, 24*time.Hour)
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, lister.calls)
	assert.Nil(t, lister.companyID)
}

func TestPendingCashAuditPropagatesError(t *testing.T) {
	job, err := NewPendingCashAuditJob(testLogger(), &fakePendingCash{err: errors.New("db down")}, 0)
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, 24*time.Hour, job.grace)
}
