package enums

import "fmt"

// OutboxAggregateType names the entity a domain event is about.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateSettlement     OutboxAggregateType = "settlement"
	AggregatePayout         OutboxAggregateType = "payout"
	AggregateCashCollection OutboxAggregateType = "cash_collection"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateSettlement,
	AggregatePayout,
	AggregateCashCollection,
}

// IsValid reports whether the value matches the canonical aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event relayed by the outbox publisher.
type OutboxEventType string

const (
	EventOrderPlaced         OutboxEventType = "order_placed"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventDriverAssigned      OutboxEventType = "driver_assigned"
	EventCashCollected       OutboxEventType = "cash_collected"
	EventSettlementCreated   OutboxEventType = "settlement_created"
	EventSettlementVerified  OutboxEventType = "settlement_verified"
	EventPayoutRequested     OutboxEventType = "payout_requested"
	EventPayoutStatusChanged OutboxEventType = "payout_status_changed"
)

var validEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderStatusChanged,
	EventDriverAssigned,
	EventCashCollected,
	EventSettlementCreated,
	EventSettlementVerified,
	EventPayoutRequested,
	EventPayoutStatusChanged,
}

// IsValid reports whether the value matches the canonical event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
