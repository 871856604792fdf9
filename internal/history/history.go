package history

import (
	"context"
	"log/slog"
	"time"
)

// Action defines the kind of audited admin action.
type Action string

const (
	ActionLogin      Action = "login"
	ActionLogout     Action = "logout"
	ActionTestCreate Action = "test_create"
	ActionTestUpdate Action = "test_update"
	ActionBotControl Action = "bot_control"
)

// Event is an admin audit record exported to external systems.
type Event struct {
	Action     Action    `json:"action"`
	Actor      string    `json:"actor"`
	Target     string    `json:"target"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for audit events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder wraps a Sink so that audit failures never fail the
// admin operation itself; errors are logged and dropped.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Record sends the event, stamping OccurredAt when unset. A nil
// Recorder or nil sink is a no-op so auditing stays optional.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil || r.sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now()
	}
	if err := r.sink.Send(ctx, e); err != nil {
		r.logger.Warn("audit sink send failed", "action", string(e.Action), "error", err)
	}
}
