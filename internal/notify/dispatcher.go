package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gopherfood/internal/model"
)

const sendTimeout = 15 * time.Second

// Dispatcher принимает события после фиксации транзакций и доставляет их получателям
// в фоне. При переполнении буфера событие отбрасывается с предупреждением:
// публикация никогда не блокирует операцию пользователя.
type Dispatcher struct {
	queue  chan Envelope
	sinks  []Sink
	logger *zap.Logger
}

// NewDispatcher создаёт диспетчер с буфером на buffer событий.
func NewDispatcher(logger *zap.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		queue:  make(chan Envelope, buffer),
		sinks:  sinks,
		logger: logger,
	}
}

// Publish ставит события в очередь доставки.
func (d *Dispatcher) Publish(_ context.Context, events ...model.Event) {
	for _, ev := range events {
		env := NewEnvelope(ev)
		select {
		case d.queue <- env:
		default:
			d.logger.Warn("event queue full, event dropped",
				zap.String("type", string(env.Type)),
				zap.String("id", env.ID.String()),
			)
		}
	}
}

// Run доставляет события до отмены ctx, после чего отправляет оставшиеся в буфере.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case env := <-d.queue:
			d.deliver(ctx, env)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for {
		select {
		case env := <-d.queue:
			d.deliver(ctx, env)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Send(sendCtx, env)
		cancel()
		if err != nil {
			d.logger.Warn("event delivery failed",
				zap.String("type", string(env.Type)),
				zap.String("id", env.ID.String()),
				zap.Error(err),
			)
		}
	}
}
