package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// SessionPruner deletes admin sessions whose expiry has passed.
type SessionPruner interface {
	DeleteExpiredAdminSessions(ctx context.Context) (int64, error)
}

// Sweeper periodically prunes expired admin sessions so the table does
// not grow unbounded between logins. Resolution already rejects expired
// tokens, so the sweep is pure housekeeping and may lag safely.
type Sweeper struct {
	store    SessionPruner
	interval time.Duration
	logger   *slog.Logger
	quit     chan struct{}

	// skip a tick when the previous sweep is still running
	running atomic.Bool
}

// NewSweeper builds a sweeper. interval <= 0 selects one hour.
func NewSweeper(store SessionPruner, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Start launches the background sweep loop. Call Stop to cancel.
func (s *Sweeper) Start() error {
	if s.quit != nil {
		return errors.New("sweeper already started")
	}
	s.quit = make(chan struct{})
	go s.run()
	return nil
}

func (s *Sweeper) run() {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-t.C:
			if !s.running.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer s.running.Store(false)
				s.sweep()
			}()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.store.DeleteExpiredAdminSessions(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired admin sessions pruned", "count", n)
	}
}

// Stop cancels the sweep loop. Safe to call multiple times.
func (s *Sweeper) Stop() {
	if s.quit == nil {
		return
	}
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}
