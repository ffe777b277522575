package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
)

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), NewZoneTable(30, 30), nil)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, NewZoneTable(30, 30), nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(dbtest.Open(t)), nil, nil)
	require.Error(t, err)
}

func TestTrackingAccess(t *testing.T) {
	db := dbtest.Open(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	company := dbtest.Company(t, db, "Acme", nil)
	other := dbtest.Company(t, db, "Other", nil)
	order := dbtest.Order(t, db, dbtest.OrderSpec{
		Zone:  "north",
		Items: []dbtest.Item{{CompanyID: company.ID, UnitPriceCents: 1500, Quantity: 2}},
	})
	driverID := uuid.New()
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("assigned_driver_id", driverID).Error)

	allowed := []auth.Principal{
		{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
		{UserID: uuid.New(), Role: enums.ActorRoleStaff},
		{UserID: order.UserID, Role: enums.ActorRoleCustomer},
		{UserID: driverID, Role: enums.ActorRoleDriver},
		{UserID: uuid.New(), Role: enums.ActorRoleVendor, CompanyID: &company.ID},
	}
	for _, p := range allowed {
		tracking, err := svc.Tracking(ctx, p, order.ID)
		require.NoError(t, err, "role %s", p.Role)
		assert.Equal(t, order.ID, tracking.OrderID)
		assert.Equal(t, 45, tracking.ExpectedMinutes)
		assert.Equal(t, "pending", tracking.StatusLabel)
	}

	denied := []auth.Principal{
		{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
		{UserID: uuid.New(), Role: enums.ActorRoleDriver},
		{UserID: uuid.New(), Role: enums.ActorRoleVendor, CompanyID: &other.ID},
		{UserID: uuid.New(), Role: enums.ActorRoleVendor},
	}
	for _, p := range denied {
		_, err := svc.Tracking(ctx, p, order.ID)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "role %s: %v", p.Role, err)
	}

	_, err := svc.Tracking(ctx, allowed[0], uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Tracking(ctx, allowed[0], uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTrackingHistoryIsChronological(t *testing.T) {
	db := dbtest.Open(t)
	svc := newTestService(t, db)

	order := dbtest.Order(t, db, dbtest.OrderSpec{})
	actor := uuid.New()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	pending := enums.OrderStatusPending
	rows := []models.StatusHistory{
		{ID: uuid.New(), OrderID: order.ID, FromStatus: &pending, ToStatus: enums.OrderStatusAccepted, ChangedBy: actor, ChangedByRole: enums.ActorRoleStaff, CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), OrderID: order.ID, ToStatus: enums.OrderStatusPending, ChangedBy: order.UserID, ChangedByRole: enums.ActorRoleCustomer, CreatedAt: base},
	}
	require.NoError(t, db.Create(&rows).Error)

	tracking, err := svc.Tracking(context.Background(), auth.Principal{UserID: actor, Role: enums.ActorRoleAdmin}, order.ID)
	require.NoError(t, err)
	require.Len(t, tracking.History, 2)
	assert.Nil(t, tracking.History[0].FromStatus)
	assert.Equal(t, enums.OrderStatusPending, tracking.History[0].ToStatus)
	assert.Equal(t, enums.OrderStatusAccepted, tracking.History[1].ToStatus)
	assert.Equal(t, enums.ActorRoleStaff, tracking.History[1].Role)
}

func TestMetricsAggregatesDeliveredOrders(t *testing.T) {
	db := dbtest.Open(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	placed := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	driverID := uuid.New()

	seed := func(zone string, deliveredAfter, dispatchedAfter time.Duration, eta *time.Duration, driver *uuid.UUID) {
		order := dbtest.Order(t, db, dbtest.OrderSpec{
			Status:      enums.OrderStatusCompleted,
			Zone:        zone,
			CreatedAt:   placed,
			DeliveredAt: dbtest.Delivered(placed.Add(deliveredAfter)),
		})
		updates := map[string]any{"dispatched_at": placed.Add(dispatchedAfter)}
		if eta != nil {
			updates["estimated_delivery_at"] = placed.Add(*eta)
		}
		if driver != nil {
			updates["assigned_driver_id"] = *driver
		}
		require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error)
	}

	onTime := 60 * time.Minute
	late := 30 * time.Minute
	seed("north", 40*time.Minute, 10*time.Minute, &onTime, &driverID)
	seed("north", 60*time.Minute, 20*time.Minute, &late, nil)
	seed("central", 20*time.Minute, 5*time.Minute, nil, nil)
	dbtest.Order(t, db, dbtest.OrderSpec{Zone: "north"})

	all, err := svc.Metrics(ctx, MetricsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.DeliveredCount)
	assert.Equal(t, int64(2), all.WithEstimateCount)
	assert.Equal(t, int64(1), all.OnTimeCount)
	assert.Equal(t, 0.5, all.OnTimeRate)
	assert.Equal(t, 40.0, all.AvgDeliveryMinutes)
	assert.Equal(t, 28.33, all.AvgTransitMinutes)

	north, err := svc.Metrics(ctx, MetricsFilter{Zone: " North "})
	require.NoError(t, err)
	assert.Equal(t, int64(2), north.DeliveredCount)

	byDriver, err := svc.Metrics(ctx, MetricsFilter{DriverID: &driverID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byDriver.DeliveredCount)
	assert.Equal(t, 1.0, byDriver.OnTimeRate)

	from := placed.Add(50 * time.Minute)
	windowed, err := svc.Metrics(ctx, MetricsFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(1), windowed.DeliveredCount)
}

func TestMetricsEmptyAndInvalidRange(t *testing.T) {
	db := dbtest.Open(t)
	svc := newTestService(t, db)

	empty, err := svc.Metrics(context.Background(), MetricsFilter{})
	require.NoError(t, err)
	assert.Zero(t, empty.DeliveredCount)
	assert.Zero(t, empty.OnTimeRate)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.Metrics(context.Background(), MetricsFilter{From: &from, To: &to})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
