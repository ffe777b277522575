package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

func TestOutboxEventAttributes(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CST", -6*3600)),
	}

	attrs := event.Attributes()
	assert.Equal(t, event.ID.String(), attrs["event_id"])
	assert.Equal(t, "payout_requested", attrs["event_type"])
	assert.Equal(t, "payout", attrs["aggregate_type"])
	assert.Equal(t, "2026-03-01T18:00:00Z", attrs["created_at"])
}

func TestOutboxEventDeadLetter(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCashCollected,
		AggregateType: enums.AggregateCashCollection,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  7,
	}

	entry := event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New("broker down"), time.Now())
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, 7, entry.AttemptCount)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "broker down", *entry.ErrorMessage)

	assert.Nil(t, event.DeadLetter(enums.OutboxDLQReasonNonRetryable, nil, time.Now()).ErrorMessage)
}
