package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox"
	"github.com/angelmondragon/marketplace-engine/pkg/outbox/payloads"
)

// EventDescriptor says where an event type goes and how to decode it.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row whose envelope and payload decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that no amount of retrying will publish.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

var engineEvents = []EventDescriptor{
	describe[payloads.OrderPlacedEvent](enums.EventOrderPlaced, enums.AggregateOrder),
	describe[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
	describe[payloads.DriverAssignedEvent](enums.EventDriverAssigned, enums.AggregateOrder),
	describe[payloads.CashCollectedEvent](enums.EventCashCollected, enums.AggregateCashCollection),
	describe[payloads.SettlementCreatedEvent](enums.EventSettlementCreated, enums.AggregateSettlement),
	describe[payloads.SettlementVerifiedEvent](enums.EventSettlementVerified, enums.AggregateSettlement),
	describe[payloads.PayoutRequestedEvent](enums.EventPayoutRequested, enums.AggregatePayout),
	describe[payloads.PayoutStatusChangedEvent](enums.EventPayoutStatusChanged, enums.AggregatePayout),
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

// NewEventRegistry routes every engine event to topic.
func NewEventRegistry(topic string) (*EventRegistry, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("domain topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor, len(engineEvents)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, desc := range engineEvents {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor, then decodes and validates
// the payload. Every failure is non-retryable: the row itself is bad.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.descriptorFor(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	envelope, err := decodeEnvelope(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("invalid %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) descriptorFor(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return EventDescriptor{}, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return EventDescriptor{}, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return EventDescriptor{}, errors.New("missing aggregate_id")
	}
	return desc, nil
}

// decodeEnvelope rejects envelopes from a newer writer and envelopes whose
// self-description disagrees with the row they were stored in.
func decodeEnvelope(event models.OutboxEvent) (outbox.PayloadEnvelope, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version > outbox.EnvelopeVersion {
		return envelope, fmt.Errorf("unsupported envelope version %d", envelope.Version)
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return envelope, fmt.Errorf("envelope event type %s does not match row %s", envelope.EventType, event.EventType)
	}
	if envelope.AggregateID != nil && *envelope.AggregateID != event.AggregateID {
		return envelope, fmt.Errorf("envelope aggregate %s does not match row %s", envelope.AggregateID, event.AggregateID)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return envelope, fmt.Errorf("payload missing for %s", event.EventType)
	}
	return envelope, nil
}
