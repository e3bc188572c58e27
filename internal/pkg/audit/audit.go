package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

// EventType names an audit event. It is also the default topic.
type EventType string

const (
	EventLockout           EventType = "twofactor.lockout"
	EventBackupCodeUsed    EventType = "twofactor.backup_code_used"
	EventVerifyFailed      EventType = "twofactor.verify_failed"
	EventTimeNotCalibrated EventType = "twofactor.time_not_calibrated"
)

// Event is one audit record.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Principal  string            `json:"principal,omitempty"`
	Address    string            `json:"address,omitempty"`
	Time       time.Time         `json:"time"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Sink delivers encoded events to a destination.
type Sink interface {
	io.Closer
	Send(ctx context.Context, topic string, key, body []byte) error
}

// Recorder publishes events through a Sink without blocking the caller.
type Recorder struct {
	sink   Sink
	prefix string
	gm     *goroutine.Manager
	ids    uid.StringID
}

// NewRecorder returns a Recorder. prefix is prepended to every topic and
// gm bounds the number of in-flight deliveries.
func NewRecorder(sink Sink, prefix string, gm *goroutine.Manager) *Recorder {
	return &Recorder{sink: sink, prefix: prefix, gm: gm, ids: uid.NewUUID()}
}

// Record fills in the event id and time when missing and schedules delivery.
// The delivery outlives ctx cancellation but keeps its values.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.sink == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = r.ids.Generate()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode audit event", "type", ev.Type, "error", err)
		return
	}

	topic := r.prefix + string(ev.Type)
	key := []byte(ev.Address)

	accepted := r.gm.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := r.sink.Send(ctx, topic, key, body); err != nil {
			slog.WarnContext(ctx, "failed to deliver audit event", "type", ev.Type, "topic", topic, "error", err)
			return err
		}
		return nil
	})
	if !accepted {
		slog.WarnContext(ctx, "audit event dropped", "type", ev.Type, "id", ev.ID)
	}
}
