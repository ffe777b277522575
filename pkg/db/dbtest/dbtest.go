// Package dbtest opens isolated in-memory sqlite databases carrying the engine
// schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

var seq atomic.Int64

const schema = `
CREATE TABLE companies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	commission_rate TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	payment_method TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	zone TEXT NOT NULL,
	delivery_fee_cents INTEGER NOT NULL DEFAULT 0,
	total_cents INTEGER NOT NULL,
	assigned_driver_id TEXT,
	estimated_delivery_at DATETIME,
	accepted_at DATETIME,
	preparing_at DATETIME,
	dispatched_at DATETIME,
	delivered_at DATETIME,
	completed_at DATETIME,
	cancelled_at DATETIME,
	paid_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE order_items (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id),
	product_id TEXT NOT NULL,
	company_id TEXT NOT NULL REFERENCES companies(id),
	unit_price_cents INTEGER NOT NULL,
	quantity INTEGER NOT NULL,
	discount_cents INTEGER NOT NULL DEFAULT 0,
	payout_status TEXT NOT NULL DEFAULT 'unpaid',
	payout_id TEXT,
	created_at DATETIME
);
CREATE TABLE order_status_history (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id),
	from_status TEXT,
	to_status TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	changed_by_role TEXT NOT NULL,
	comment TEXT,
	created_at DATETIME NOT NULL
);
CREATE TABLE driver_assignments (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(id),
	driver_id TEXT NOT NULL,
	assigned_by TEXT NOT NULL,
	zone TEXT NOT NULL,
	estimated_delivery_at DATETIME NOT NULL,
	assigned_at DATETIME NOT NULL
);
CREATE TABLE cash_collections (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
	amount_cents INTEGER NOT NULL,
	collected_by TEXT NOT NULL,
	recorded_by TEXT NOT NULL,
	collected_at DATETIME NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT 0,
	notes TEXT
);
CREATE TABLE ledger_events (
	id TEXT PRIMARY KEY,
	company_id TEXT,
	order_id TEXT,
	payout_id TEXT,
	actor_user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	metadata BLOB,
	created_at DATETIME
);
CREATE TABLE settlements (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id),
	period_start DATETIME NOT NULL,
	period_end DATETIME NOT NULL,
	total_orders INTEGER NOT NULL,
	total_revenue_cents INTEGER NOT NULL,
	total_commission_cents INTEGER NOT NULL,
	total_payout_cents INTEGER NOT NULL,
	cash_collected_cents INTEGER NOT NULL,
	cash_to_remit_cents INTEGER NOT NULL,
	commission_rate TEXT NOT NULL,
	status TEXT NOT NULL,
	created_by TEXT NOT NULL,
	verified_by TEXT,
	verified_at DATETIME,
	notes TEXT,
	created_at DATETIME,
	updated_at DATETIME,
	UNIQUE (company_id, period_start, period_end)
);
CREATE TABLE payouts (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id),
	amount_cents INTEGER NOT NULL,
	claimed_net_cents INTEGER NOT NULL DEFAULT 0,
	method TEXT NOT NULL,
	status TEXT NOT NULL,
	bank_details TEXT,
	orders_included TEXT NOT NULL DEFAULT '{}',
	notes TEXT,
	requested_by TEXT NOT NULL,
	processed_by TEXT,
	processed_at DATETIME,
	completed_at DATETIME,
	cancelled_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	order_id TEXT,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	read_at DATETIME,
	created_at DATETIME
);
CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at DATETIME,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
);
CREATE TABLE outbox_dlq (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload_json BLOB NOT NULL,
	error_reason TEXT NOT NULL,
	error_message TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	failed_at DATETIME,
	created_at DATETIME
);
`

// Open returns a fresh in-memory database with the engine schema. The pool is
// capped at one connection so transactions serialize the way row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// Company inserts a company. A nil rate leaves commission_rate NULL.
func Company(t *testing.T, db *gorm.DB, name string, rate *decimal.Decimal) *models.Company {
	t.Helper()
	company := &models.Company{ID: uuid.New(), Name: name}
	if rate != nil {
		company.CommissionRate = decimal.NewNullDecimal(*rate)
	}
	require.NoError(t, db.Create(company).Error)
	return company
}

// Item describes an order line for the Order fixture.
type Item struct {
	CompanyID      uuid.UUID
	UnitPriceCents int64
	Quantity       int64
	DiscountCents  int64
}

// OrderSpec describes an order fixture; zero values fall back to a pending
// cash-on-delivery order in the central zone.
type OrderSpec struct {
	UserID        uuid.UUID
	Status        enums.OrderStatus
	PaymentMethod enums.PaymentMethod
	PaymentStatus enums.PaymentStatus
	Zone          string
	DeliveryFee   int64
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	Items         []Item
}

// Order inserts an order with its items, bypassing the state machine.
func Order(t *testing.T, db *gorm.DB, spec OrderSpec) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:               uuid.New(),
		UserID:           spec.UserID,
		Status:           spec.Status,
		PaymentMethod:    spec.PaymentMethod,
		PaymentStatus:    spec.PaymentStatus,
		Zone:             spec.Zone,
		DeliveryFeeCents: spec.DeliveryFee,
		DeliveredAt:      spec.DeliveredAt,
		CreatedAt:        spec.CreatedAt,
	}
	if order.UserID == uuid.Nil {
		order.UserID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPending
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = enums.PaymentMethodCashOnDelivery
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = enums.PaymentStatusUnpaid
	}
	if order.Zone == "" {
		order.Zone = "central"
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.DeliveredAt != nil {
		completed := *order.DeliveredAt
		order.CompletedAt = &completed
	}

	total := spec.DeliveryFee
	items := make([]models.OrderItem, 0, len(spec.Items))
	for _, it := range spec.Items {
		item := models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      uuid.New(),
			CompanyID:      it.CompanyID,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			DiscountCents:  it.DiscountCents,
			PayoutStatus:   enums.OrderPayoutStatusUnpaid,
			CreatedAt:      order.CreatedAt,
		}
		total += item.RevenueCents()
		items = append(items, item)
	}
	order.TotalCents = total

	require.NoError(t, db.Omit("Items").Create(order).Error)
	if len(items) > 0 {
		require.NoError(t, db.Create(&items).Error)
	}
	order.Items = items
	return order
}

// Delivered returns a pointer to t in UTC, for OrderSpec.DeliveredAt.
func Delivered(at time.Time) *time.Time {
	utc := at.UTC()
	return &utc
}
