package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/enums"
)

// EnvelopeVersion is stamped on events that do not pick their own.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID    uuid.UUID       `json:"userId"`
	Role      enums.ActorRole `json:"role,omitempty"`
	CompanyID *uuid.UUID      `json:"companyId,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive. EventID equals the outbox row id, so consumers can dedupe on it.
type PayloadEnvelope struct {
	Version       int                       `json:"version"`
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType,omitempty"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType,omitempty"`
	AggregateID   *uuid.UUID                `json:"aggregateId,omitempty"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	Actor         *ActorRef                 `json:"actor,omitempty"`
	Data          json.RawMessage           `json:"data"`
}

func newEnvelope(id uuid.UUID, event DomainEvent, data json.RawMessage) PayloadEnvelope {
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	aggregateID := event.AggregateID
	return PayloadEnvelope{
		Version:       version,
		EventID:       id.String(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   &aggregateID,
		OccurredAt:    event.OccurredAt,
		Actor:         event.Actor,
		Data:          data,
	}
}
