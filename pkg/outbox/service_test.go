package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-engine/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTx(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), logger.Nop())

	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: enums.ActorRoleStaff}
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data:          map[string]string{"to_status": "accepted"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.Equal(t, enums.EventOrderStatusChanged, envelope.EventType)
	require.NotNil(t, envelope.AggregateID)
	assert.Equal(t, orderID, *envelope.AggregateID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"to_status":"accepted"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTx(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitValidation(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder})
	require.Error(t, err)

	err = svc.Emit(context.Background(), db, DomainEvent{EventType: "bogus", AggregateType: enums.AggregateOrder})
	require.Error(t, err)

	err = svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Data:          &payloads.PayoutRequestedEvent{PayoutID: uuid.New(), CompanyID: uuid.New()},
	})
	require.ErrorContains(t, err, "AmountCents")

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishBookkeeping(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	emit := func() {
		require.NoError(t, svc.Emit(context.Background(), db, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]int{"n": 1},
		}))
	}
	emit()
	emit()
	emit()

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, rows[1].ID, errors.New("transient")))
	require.NoError(t, repo.MarkTerminalTx(db, rows[2].ID, errors.New("poison"), 3))

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "transient", *pending[0].LastError)

	count, err := repo.CountPending(db, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	db := dbtest.Open(t)
	dlq := NewDLQRepository(db)

	eventID := uuid.New()
	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventCashCollected,
		AggregateType: enums.AggregateCashCollection,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRequeueRestoresAttemptBudget(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	dlq := NewDLQRepository(db)
	require.NoError(t, NewService(repo, nil).Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]int{"n": 1},
	}))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	event := rows[0]
	require.NoError(t, repo.MarkTerminalTx(db, event.ID, errors.New("poison"), 3))
	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  3,
	}))

	require.NoError(t, dlq.Requeue(context.Background(), event.ID))

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].AttemptCount)
	assert.Nil(t, pending[0].LastError)

	parked, err := dlq.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Nil(t, parked)

	err = dlq.Requeue(context.Background(), event.ID)
	assert.ErrorIs(t, err, ErrNotDeadLettered)
}

func TestDLQDeleteFailedBefore(t *testing.T) {
	db := dbtest.Open(t)
	dlq := NewDLQRepository(db)
	now := time.Now().UTC()

	for _, failedAt := range []time.Time{now.Add(-48 * time.Hour), now} {
		require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			FailedAt:      failedAt,
		}))
	}

	deleted, err := dlq.DeleteFailedBefore(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
