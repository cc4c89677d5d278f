package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Log writes each event to the structured log. The fallback publisher when
// no broker is configured, so event flow stays observable in development.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging publisher.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "event",
		"type", string(event.Type),
		"payload", string(payload),
	)
	return nil
}

func (l *Log) Close() error { return nil }
