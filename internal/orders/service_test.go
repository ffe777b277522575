package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-engine/internal/delivery"
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/db"
	"github.com/angelmondragon/marketplace-engine/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []enums.OrderStatus
	err   error
}

func (n *recordingNotifier) NotifyOrderStatus(ctx context.Context, order models.Order, from, to enums.OrderStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, to)
	return n.err
}

type stepClock struct {
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.at = c.at.Add(time.Minute)
	return c.at
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	notifier *recordingNotifier
	company  *models.Company
	staff    auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	notifier := &recordingNotifier{}
	clock := &stepClock{at: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.Wrap(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		ETA:      delivery.NewZoneTable(30, 30),
		Notifier: notifier,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return &fixture{
		conn:     conn,
		svc:      svc,
		notifier: notifier,
		company:  dbtest.Company(t, conn, "Acme", nil),
		staff:    auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleStaff},
	}
}

func (f *fixture) place(t *testing.T, customer uuid.UUID, zone string) *models.Order {
	t.Helper()
	order, err := f.svc.PlaceOrder(context.Background(), auth.Principal{UserID: customer, Role: enums.ActorRoleCustomer}, PlaceOrderInput{
		Zone:             zone,
		PaymentMethod:    enums.PaymentMethodCashOnDelivery,
		DeliveryFeeCents: 500,
		Items: []ItemInput{
			{ProductID: uuid.New(), CompanyID: f.company.ID, UnitPriceCents: 1500, Quantity: 12},
			{ProductID: uuid.New(), CompanyID: f.company.ID, UnitPriceCents: 2500, Quantity: 6, DiscountCents: 1000},
		},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", id).First(&order).Error)
	return order
}

func (f *fixture) historyCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.StatusHistory{}).Where("order_id = ?", id).Count(&count).Error)
	return count
}

func (f *fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestPlaceOrderPersistsSnapshot(t *testing.T) {
	f := newFixture(t)
	customer := uuid.New()

	order := f.place(t, customer, " North ")
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, "north", order.Zone)
	assert.Equal(t, int64(18000+15000-1000+500), order.TotalCents)

	var items []models.OrderItem
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&items).Error)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, enums.OrderPayoutStatusUnpaid, item.PayoutStatus)
	}

	history, err := f.svc.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, enums.OrderStatusPending, history[0].ToStatus)
	assert.Equal(t, customer, history[0].ChangedBy)

	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderPlaced))
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusPending}, f.notifier.calls)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	customer := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleCustomer}
	valid := func() PlaceOrderInput {
		return PlaceOrderInput{
			Zone:          "central",
			PaymentMethod: enums.PaymentMethodCard,
			Items:         []ItemInput{{ProductID: uuid.New(), CompanyID: f.company.ID, UnitPriceCents: 100, Quantity: 1}},
		}
	}

	cases := map[string]func(in *PlaceOrderInput){
		"no items":        func(in *PlaceOrderInput) { in.Items = nil },
		"zero quantity":   func(in *PlaceOrderInput) { in.Items[0].Quantity = 0 },
		"negative price":  func(in *PlaceOrderInput) { in.Items[0].UnitPriceCents = -1 },
		"discount > line": func(in *PlaceOrderInput) { in.Items[0].DiscountCents = 101 },
		"no zone":         func(in *PlaceOrderInput) { in.Zone = " " },
		"bad method":      func(in *PlaceOrderInput) { in.PaymentMethod = "barter" },
		"negative fee":    func(in *PlaceOrderInput) { in.DeliveryFeeCents = -5 },
	}
	for name, mutate := range cases {
		in := valid()
		mutate(&in)
		_, err := f.svc.PlaceOrder(context.Background(), customer, in)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: %v", name, err)
	}

	in := valid()
	in.Items[0].CompanyID = uuid.New()
	_, err := f.svc.PlaceOrder(context.Background(), customer, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	in = valid()
	other := uuid.New()
	in.CustomerID = &other
	_, err = f.svc.PlaceOrder(context.Background(), customer, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransitionSkipAheadIsRejected(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, uuid.New(), "central")

	_, err := f.svc.Transition(context.Background(), f.staff, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusOnTheWay})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.DispatchedAt)
	assert.Equal(t, int64(1), f.historyCount(t, order.ID))
	assert.Zero(t, f.outboxCount(t, enums.EventOrderStatusChanged))
}

func TestFullLifecycleStampsAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, uuid.New(), "north")
	vendor := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleVendor, CompanyID: &f.company.ID}

	accepted, err := f.svc.Transition(ctx, vendor, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusAccepted})
	require.NoError(t, err)
	require.NotNil(t, accepted.AcceptedAt)
	assert.Nil(t, accepted.PreparingAt)

	note := "  packing now "
	_, err = f.svc.Transition(ctx, vendor, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusPreparing, Note: &note})
	require.NoError(t, err)

	driverID := uuid.New()
	dispatched, err := f.svc.AssignDriver(ctx, f.staff, AssignDriverInput{OrderID: order.ID, DriverID: driverID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusOnTheWay, dispatched.Status)
	require.NotNil(t, dispatched.DispatchedAt)
	require.NotNil(t, dispatched.EstimatedDeliveryAt)
	assert.Equal(t, 45*time.Minute, dispatched.EstimatedDeliveryAt.Sub(*dispatched.DispatchedAt))

	var assignments []models.DriverAssignment
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&assignments).Error)
	require.Len(t, assignments, 1)
	assert.Equal(t, driverID, assignments[0].DriverID)

	driver := auth.Principal{UserID: driverID, Role: enums.ActorRoleDriver}
	delivered, err := f.svc.Transition(ctx, driver, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusDelivered})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	require.NotNil(t, delivered.CompletedAt)
	assert.Equal(t, *delivered.DeliveredAt, *delivered.CompletedAt)
	assert.Nil(t, delivered.CancelledAt)

	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	require.NotNil(t, stored.AssignedDriverID)
	assert.Equal(t, driverID, *stored.AssignedDriverID)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	want := []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusAccepted, enums.OrderStatusPreparing, enums.OrderStatusOnTheWay, enums.OrderStatusDelivered}
	for i, entry := range history {
		assert.Equal(t, want[i], entry.ToStatus)
		if i > 0 {
			require.NotNil(t, entry.FromStatus)
			assert.Equal(t, want[i-1], *entry.FromStatus)
		}
	}
	require.NotNil(t, history[2].Comment)
	assert.Equal(t, "packing now", *history[2].Comment)
	assert.Equal(t, enums.ActorRoleDriver, history[4].ChangedByRole)

	assert.Equal(t, int64(4), f.outboxCount(t, enums.EventOrderStatusChanged))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventDriverAssigned))

	_, err = f.svc.Transition(ctx, f.staff, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestTransitionRoleFilterLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, uuid.New(), "central")
	stranger := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleCustomer}

	_, err := f.svc.Transition(context.Background(), stranger, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Transition(context.Background(), stranger, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusDelivered})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	assert.Equal(t, enums.OrderStatusPending, f.reload(t, order.ID).Status)
	assert.Equal(t, int64(1), f.historyCount(t, order.ID))
}

func TestTransitionInputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, f.staff, TransitionInput{OrderID: uuid.New(), Status: enums.OrderStatusAccepted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Transition(ctx, f.staff, TransitionInput{OrderID: uuid.New(), Status: "teleported"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Transition(ctx, auth.Principal{}, TransitionInput{OrderID: uuid.New(), Status: enums.OrderStatusAccepted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, uuid.New(), "central")
	f.notifier.err = errors.New("push gateway down")

	updated, err := f.svc.Transition(context.Background(), f.staff, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusAccepted, updated.Status)
	assert.Equal(t, enums.OrderStatusAccepted, f.reload(t, order.ID).Status)
}

func TestAssignDriverRequiresPreparing(t *testing.T) {
	f := newFixture(t)
	order := f.place(t, uuid.New(), "central")

	_, err := f.svc.AssignDriver(context.Background(), f.staff, AssignDriverInput{OrderID: order.ID, DriverID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePreconditionFailed))

	stored := f.reload(t, order.ID)
	assert.Nil(t, stored.AssignedDriverID)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)

	vendor := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleVendor, CompanyID: &f.company.ID}
	_, err = f.svc.AssignDriver(context.Background(), vendor, AssignDriverInput{OrderID: order.ID, DriverID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestBulkTransitionIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.place(t, uuid.New(), "central")
	second := f.place(t, uuid.New(), "central")
	_, err := f.svc.Transition(ctx, f.staff, TransitionInput{OrderID: second.ID, Status: enums.OrderStatusCancelled})
	require.NoError(t, err)
	missing := uuid.New()

	result, err := f.svc.BulkTransition(ctx, f.staff, BulkTransitionInput{
		OrderIDs: []uuid.UUID{first.ID, second.ID, missing, first.ID},
		Status:   enums.OrderStatusAccepted,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 2, result.FailedCount)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, result.Failures[0].Code)
	assert.Equal(t, pkgerrors.CodeNotFound, result.Failures[1].Code)
	assert.Equal(t, enums.OrderStatusAccepted, f.reload(t, first.ID).Status)

	_, err = f.svc.BulkTransition(ctx, f.staff, BulkTransitionInput{Status: enums.OrderStatusAccepted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
