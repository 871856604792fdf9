package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// The bot runtime state is a single-row mailbox shared with the bot worker
// process. The web app writes control commands and the forced stop; the
// worker writes status, QR payload, heartbeat and command acknowledgements.
// Both sides address the row by its fixed id.
const runtimeStateID = 1

// RuntimeState mirrors the bot_runtime_state row.
type RuntimeState struct {
	Status             string
	QRDataURL          sql.NullString
	LastError          sql.NullString
	HeartbeatAt        sql.NullTime
	ControlAction      sql.NullString
	ControlToken       sql.NullString
	ControlRequestedAt sql.NullTime
	ControlProcessedAt sql.NullTime
	ControlResult      sql.NullString
	UpdatedAt          time.Time
}

// runtimeEnsured suppresses redundant singleton upserts after the first
// successful EnsureRuntime. Races on first call are harmless: the insert
// is conflict-do-nothing.
var runtimeEnsured atomic.Bool

// ResetRuntimeEnsured clears the process-local ensured flag. Test helper.
func ResetRuntimeEnsured() { runtimeEnsured.Store(false) }

// EnsureRuntime idempotently guarantees the singleton row exists with the
// default stopped status. Safe to call concurrently and repeatedly.
func (s *Store) EnsureRuntime(ctx context.Context) error {
	if runtimeEnsured.Load() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_runtime_state(id, status, updated_at)
		VALUES($1, 'stopped', $2)
		ON CONFLICT(id) DO NOTHING;`, runtimeStateID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure bot runtime row: %w", err)
	}
	runtimeEnsured.Store(true)
	return nil
}

// ReadRuntime returns the current runtime state, or stopped defaults when
// the row has never been written.
func (s *Store) ReadRuntime(ctx context.Context) (RuntimeState, error) {
	var rs RuntimeState
	err := s.db.QueryRowContext(ctx, `
		SELECT status, qr_data_url, last_error, heartbeat_at,
		       control_action, control_token, control_requested_at,
		       control_processed_at, control_result, updated_at
		FROM bot_runtime_state WHERE id=$1;`, runtimeStateID).Scan(
		&rs.Status, &rs.QRDataURL, &rs.LastError, &rs.HeartbeatAt,
		&rs.ControlAction, &rs.ControlToken, &rs.ControlRequestedAt,
		&rs.ControlProcessedAt, &rs.ControlResult, &rs.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RuntimeState{Status: "stopped", UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return RuntimeState{}, fmt.Errorf("read bot runtime state: %w", err)
	}
	return rs, nil
}

// WriteControlCommand records a new control command, unconditionally
// replacing the previous one (last-writer-wins, no queue) and clearing the
// acknowledgement fields in the same UPDATE.
func (s *Store) WriteControlCommand(ctx context.Context, action, token string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_runtime_state
		SET control_action=$1,
		    control_token=$2,
		    control_requested_at=$3,
		    control_processed_at=NULL,
		    control_result=NULL,
		    updated_at=$3
		WHERE id=$4;`, action, token, now, runtimeStateID)
	if err != nil {
		return fmt.Errorf("write control command: %w", err)
	}
	return nil
}

// ForceStopped marks the bot as stopped and clears the pairing payload and
// last error. The web app applies this directly on stop since no worker is
// left to process a queued command once the process is down.
func (s *Store) ForceStopped(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_runtime_state
		SET status='stopped',
		    qr_data_url=NULL,
		    last_error=NULL,
		    updated_at=$1
		WHERE id=$2;`, time.Now().UTC(), runtimeStateID)
	if err != nil {
		return fmt.Errorf("force stopped: %w", err)
	}
	return nil
}
