// Package notify доставляет события ядра заказов внешним получателям: webhook, RabbitMQ и журнал.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/gopherfood/internal/model"
)

// Envelope — формат события на внешней границе.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       model.EventType `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    model.Event     `json:"payload"`
}

// NewEnvelope оборачивает событие, присваивая ему уникальный идентификатор.
func NewEnvelope(ev model.Event) Envelope {
	return Envelope{
		ID:         uuid.New(),
		Type:       ev.Type(),
		OccurredAt: ev.OccurredAt().UTC(),
		Payload:    ev,
	}
}

// Sink получает события от Dispatcher.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
}

// LogSink пишет события в журнал.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт получатель, пишущий события в logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send записывает событие с уровнем Info.
func (s *LogSink) Send(_ context.Context, env Envelope) error {
	s.logger.Info("event",
		zap.String("id", env.ID.String()),
		zap.String("type", string(env.Type)),
		zap.Time("occurredAt", env.OccurredAt),
		zap.Any("payload", env.Payload),
	)
	return nil
}
