package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

// DomainEvent is a state change to record alongside the write that caused it.
// A zero Version means EnvelopeVersion; a zero OccurredAt means now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service writes domain events into the outbox inside the caller's
// transaction, so an event exists exactly when its state change committed.
type Service struct {
	repo     *Repository
	logg     *logger.Logger
	validate *validator.Validate
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:     repo,
		logg:     logg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Emit rejects events the relay could never deliver: unknown types and
// struct payloads that fail their validate tags.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return fmt.Errorf("unsupported outbox event %s/%s", event.AggregateType, event.EventType)
	}
	if err := s.checkPayload(event.Data); err != nil {
		return fmt.Errorf("%s payload: %w", event.EventType, err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	row, err := buildRow(uuid.New(), event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":       row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_id":   row.AggregateID.String(),
		"aggregate_type": row.AggregateType,
	}), "outbox event queued")
	return nil
}

func (s *Service) checkPayload(data any) error {
	value := reflect.Indirect(reflect.ValueOf(data))
	if value.Kind() != reflect.Struct {
		return nil
	}
	return s.validate.Struct(value.Interface())
}

// buildRow wraps the payload in its envelope. The row id doubles as the
// envelope's event id.
func buildRow(id uuid.UUID, event DomainEvent) (models.OutboxEvent, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", event.EventType, err)
	}
	payload, err := json.Marshal(newEnvelope(id, event, data))
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
		CreatedAt:     event.OccurredAt,
	}, nil
}
