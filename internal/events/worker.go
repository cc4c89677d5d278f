package events

import (
	"context"
	"log/slog"
)

// Worker decouples event delivery from the request path: Emit enqueues and
// returns, a background Run loop drains into the wrapped publisher. Callers
// emit only after their transaction has committed, so delivery may lag the
// state change.
type Worker struct {
	inner  Publisher
	inbox  chan Event
	logger *slog.Logger
}

// NewWorker wraps a publisher with a buffered inbox.
func NewWorker(inner Publisher, buffer int, logger *slog.Logger) *Worker {
	if buffer < 1 {
		buffer = 256
	}
	return &Worker{
		inner:  inner,
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues the event. When the inbox is full the event is dropped with
// a warning rather than stalling the caller.
func (w *Worker) Emit(ctx context.Context, event Event) error {
	select {
	case w.inbox <- event:
		return nil
	default:
		w.logger.WarnContext(ctx, "event inbox full, dropping event",
			"type", string(event.Type),
		)
		return nil
	}
}

// Run drains the inbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.inner.Emit(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to deliver event",
					"type", string(event.Type),
					"error", err,
				)
			}
		}
	}
}

func (w *Worker) Close() error {
	return w.inner.Close()
}
