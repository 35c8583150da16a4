package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// Reaper destroys sessions whose bootstrap dialog was abandoned
type Reaper struct {
	manager       *Manager
	notifier      Notifier
	interval      time.Duration
	handleTimeout time.Duration
	sheetTimeout  time.Duration
}

// NewReaper creates a new reaper
func NewReaper(manager *Manager, notifier Notifier, interval, handleTimeout, sheetTimeout time.Duration) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Reaper{
		manager:       manager,
		notifier:      notifier,
		interval:      interval,
		handleTimeout: handleTimeout,
		sheetTimeout:  sheetTimeout,
	}
}

// Start begins the reaper in a goroutine
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reaper) run(ctx context.Context) {
	slog.Info("reaper started",
		"interval", r.interval,
		"handle_timeout", r.handleTimeout,
		"sheet_timeout", r.sheetTimeout,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

// reap expires stale bootstrap sessions and tells their chats
func (r *Reaper) reap(ctx context.Context) {
	expired := r.manager.ExpireStale(r.handleTimeout, r.sheetTimeout)
	if len(expired) == 0 {
		return
	}

	slog.Info("expired abandoned sessions", "count", len(expired))

	for _, s := range expired {
		slog.Info("session expired", "session_id", s.ID, "owner", s.Owner, "state", s.State)
		if r.notifier == nil {
			continue
		}
		if err := r.notifier.Send(ctx, s.ChatID, expiryMessage(s, r.handleTimeout, r.sheetTimeout)); err != nil {
			slog.Error("failed to notify expired session", "error", err, "session_id", s.ID)
		}
	}
}

func expiryMessage(s models.TrackingSession, handleTimeout, sheetTimeout time.Duration) string {
	if s.State == models.SessionAwaitingHandle {
		return fmt.Sprintf("No handle provided within %s. Send /start to try again.", handleTimeout)
	}
	return fmt.Sprintf("No sheet id provided within %s. Send /start to try again.", sheetTimeout)
}
