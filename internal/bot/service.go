package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RollSatrs/speechcenter-admin/internal/metrics"
	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

// Control actions written into the runtime mailbox for the worker.
const (
	ActionConnect   = "connect"
	ActionReconnect = "reconnect"
	ActionStop      = "stop"
)

// DefaultHeartbeatWindow is the maximum heartbeat age before the worker is
// declared dead. The worker heartbeats well under this while alive, so a
// stale timestamp overrides whatever status it last persisted.
const DefaultHeartbeatWindow = 12 * time.Second

// RuntimeStore is the mailbox/heartbeat persistence consumed by the service.
type RuntimeStore interface {
	EnsureRuntime(ctx context.Context) error
	ReadRuntime(ctx context.Context) (store.RuntimeState, error)
	WriteControlCommand(ctx context.Context, action, token string) error
	ForceStopped(ctx context.Context) error
}

// ProcessSupervisor is the OS-process control surface consumed by the service.
type ProcessSupervisor interface {
	Status(ctx context.Context) ProcessStatus
	EnsureOnline(ctx context.Context) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
}

// UnavailableError marks failures where the supervisor could not act on the
// process; HTTP handlers translate it to 503.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string { return e.Err.Error() }
func (e *UnavailableError) Unwrap() error { return e.Err }

// StatusReport is the liveness-adjusted view returned to the dashboard.
type StatusReport struct {
	Status      string        `json:"status"`
	QRDataURL   *string       `json:"qrDataUrl"`
	LastError   *string       `json:"lastError"`
	HeartbeatAt *time.Time    `json:"heartbeatAt"`
	UpdatedAt   *time.Time    `json:"updatedAt"`
	Process     ProcessStatus `json:"process"`
}

// Service dispatches control commands to the bot worker and resolves its
// displayed status. All state lives in the runtime store; the service
// itself is stateless and safe for concurrent use.
type Service struct {
	store  RuntimeStore
	sup    ProcessSupervisor
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewService wires the control/status service. window <= 0 selects
// DefaultHeartbeatWindow.
func NewService(rs RuntimeStore, sup ProcessSupervisor, window time.Duration, logger *slog.Logger) *Service {
	if window <= 0 {
		window = DefaultHeartbeatWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: rs, sup: sup, window: window, now: time.Now, logger: logger}
}

// Connect ensures the worker process is running and records a connect
// command with a fresh correlation token. The process action always
// precedes the state write; the pair is not transactional.
func (s *Service) Connect(ctx context.Context) (string, error) {
	return s.dispatch(ctx, ActionConnect, s.sup.EnsureOnline)
}

// Reconnect forces a process restart even when already online, then
// records a reconnect command.
func (s *Service) Reconnect(ctx context.Context) (string, error) {
	return s.dispatch(ctx, ActionReconnect, s.sup.Restart)
}

func (s *Service) dispatch(ctx context.Context, action string, processAction func(context.Context) error) (string, error) {
	if err := processAction(ctx); err != nil {
		metrics.IncSupervisorFailure()
		return "", &UnavailableError{Err: err}
	}
	if err := s.store.EnsureRuntime(ctx); err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := s.store.WriteControlCommand(ctx, action, token); err != nil {
		return "", err
	}
	metrics.IncControlCommand(action)
	s.logger.Info("bot control command issued", "action", action, "token", token)
	return token, nil
}

// Stop halts the process and forces the stored status to stopped with the
// QR payload and last error cleared. No command token is written: there is
// no worker left to process a mailbox entry once the process is down.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.sup.Stop(ctx); err != nil {
		metrics.IncSupervisorFailure()
		return &UnavailableError{Err: err}
	}
	if err := s.store.EnsureRuntime(ctx); err != nil {
		return err
	}
	if err := s.store.ForceStopped(ctx); err != nil {
		return err
	}
	metrics.IncControlCommand(ActionStop)
	s.logger.Info("bot control command issued", "action", ActionStop)
	return nil
}

// Status resolves the displayed bot status. A missing or stale heartbeat
// synthesizes "offline" regardless of the persisted status, so the UI
// never shows "connected" for a silently dead worker. Degrades instead of
// failing: store errors fall back to stopped defaults.
func (s *Service) Status(ctx context.Context) StatusReport {
	metrics.IncStatusPoll()
	if err := s.store.EnsureRuntime(ctx); err != nil {
		s.logger.Error("ensure bot runtime state", "error", err)
	}

	proc := s.sup.Status(ctx)

	rs, err := s.store.ReadRuntime(ctx)
	if err != nil {
		s.logger.Error("read bot runtime state", "error", err)
		rs = store.RuntimeState{Status: "stopped"}
	}

	now := s.now()
	isOffline := !rs.HeartbeatAt.Valid || now.Sub(rs.HeartbeatAt.Time) > s.window
	status := rs.Status
	if status == "" {
		status = "stopped"
	}
	if isOffline {
		status = "offline"
	}

	report := StatusReport{Status: status, Process: proc}
	if rs.QRDataURL.Valid {
		report.QRDataURL = &rs.QRDataURL.String
	}
	if rs.LastError.Valid {
		report.LastError = &rs.LastError.String
	}
	if rs.HeartbeatAt.Valid {
		t := rs.HeartbeatAt.Time
		report.HeartbeatAt = &t
	}
	if !rs.UpdatedAt.IsZero() {
		t := rs.UpdatedAt
		report.UpdatedAt = &t
	}
	return report
}
