package audit

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Log writes events to the process logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log sink. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, topic string, _, body []byte) error {
	l.logger.InfoContext(ctx, "audit event", "topic", topic, "event", json.RawMessage(body))
	return nil
}

func (*Log) Close() error { return nil }
