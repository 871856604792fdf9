package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ProcessState is the coarse OS-process state reported by the supervisor.
// It is orthogonal to the bot's logical connection status: an online
// process can still be waiting for QR pairing, and stale logical state can
// outlive a vanished process.
type ProcessState string

const (
	ProcessOnline  ProcessState = "online"
	ProcessStopped ProcessState = "stopped"
	ProcessMissing ProcessState = "missing"
	ProcessUnknown ProcessState = "unknown"
)

// ProcessStatus is a live supervisor snapshot; it is never persisted.
type ProcessStatus struct {
	Manager   string       `json:"manager"`
	Available bool         `json:"available"`
	State     ProcessState `json:"state"`
	Message   string       `json:"message,omitempty"`
}

// ErrManagerUnavailable means the pm2 binary could not be executed at all.
// The message matches what operators see in the dashboard.
var ErrManagerUnavailable = errors.New("pm2 не установлен или недоступен в PATH")

// runner executes the supervisor CLI; swapped out in tests.
type runner func(ctx context.Context, dir, bin string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return cmd.Output()
}

// SupervisorConfig configures the pm2 adapter.
type SupervisorConfig struct {
	ProcessName   string
	Bin           string
	EcosystemPath string
	WorkDir       string
	ExecTimeout   time.Duration
}

// Supervisor controls the bot worker process through the pm2 CLI.
type Supervisor struct {
	cfg SupervisorConfig
	run runner
}

// NewSupervisor returns a pm2-backed supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Bin == "" {
		cfg.Bin = "pm2"
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 10 * time.Second
	}
	return &Supervisor{cfg: cfg, run: execRunner}
}

type pm2ListItem struct {
	Name   string `json:"name"`
	PM2Env struct {
		Status string `json:"status"`
	} `json:"pm2_env"`
}

func (s *Supervisor) pm2(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExecTimeout)
	defer cancel()
	return s.run(ctx, s.cfg.WorkDir, s.cfg.Bin, args...)
}

// Status reports the managed process state. It never fails: when the pm2
// CLI itself cannot run, the result degrades to available=false/unknown so
// callers can render the condition.
func (s *Supervisor) Status(ctx context.Context) ProcessStatus {
	out, err := s.pm2(ctx, "jlist")
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "pm2 timed out"
		}
		return ProcessStatus{Manager: "pm2", Available: false, State: ProcessUnknown, Message: msg}
	}

	var list []pm2ListItem
	if len(out) > 0 {
		if err := json.Unmarshal(out, &list); err != nil {
			return ProcessStatus{Manager: "pm2", Available: false, State: ProcessUnknown,
				Message: fmt.Sprintf("pm2 jlist parse error: %v", err)}
		}
	}

	for _, item := range list {
		if item.Name != s.cfg.ProcessName {
			continue
		}
		switch item.PM2Env.Status {
		case "online":
			return ProcessStatus{Manager: "pm2", Available: true, State: ProcessOnline}
		case "stopped", "stopping", "errored":
			return ProcessStatus{Manager: "pm2", Available: true, State: ProcessStopped}
		default:
			return ProcessStatus{Manager: "pm2", Available: true, State: ProcessUnknown,
				Message: "pm2 status: " + item.PM2Env.Status}
		}
	}
	// Normal before the process has ever been started.
	return ProcessStatus{Manager: "pm2", Available: true, State: ProcessMissing}
}

// EnsureOnline makes sure the bot process is running: no-op when online,
// start from the ecosystem file when missing, restart otherwise.
func (s *Supervisor) EnsureOnline(ctx context.Context) error {
	return s.startOrRestart(ctx, true)
}

// Restart forces a fresh process even when already online. Used by
// reconnect so the worker re-runs its pairing flow from scratch.
func (s *Supervisor) Restart(ctx context.Context) error {
	return s.startOrRestart(ctx, false)
}

func (s *Supervisor) startOrRestart(ctx context.Context, skipWhenOnline bool) error {
	st := s.Status(ctx)
	if !st.Available {
		return fmt.Errorf("%w: %s", ErrManagerUnavailable, st.Message)
	}
	if skipWhenOnline && st.State == ProcessOnline {
		return nil
	}
	if st.State == ProcessMissing {
		if _, err := s.pm2(ctx, "start", s.cfg.EcosystemPath, "--only", s.cfg.ProcessName, "--update-env"); err != nil {
			return fmt.Errorf("pm2 start %s: %w", s.cfg.ProcessName, err)
		}
		return nil
	}
	if _, err := s.pm2(ctx, "restart", s.cfg.ProcessName, "--update-env"); err != nil {
		return fmt.Errorf("pm2 restart %s: %w", s.cfg.ProcessName, err)
	}
	return nil
}

// Stop halts the bot process. Missing or already stopped processes are a
// no-op; an unavailable supervisor is an error.
func (s *Supervisor) Stop(ctx context.Context) error {
	st := s.Status(ctx)
	if !st.Available {
		return fmt.Errorf("%w: %s", ErrManagerUnavailable, st.Message)
	}
	if st.State == ProcessMissing || st.State == ProcessStopped {
		return nil
	}
	if _, err := s.pm2(ctx, "stop", s.cfg.ProcessName); err != nil {
		return fmt.Errorf("pm2 stop %s: %w", s.cfg.ProcessName, err)
	}
	return nil
}
