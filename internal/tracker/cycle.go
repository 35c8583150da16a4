package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// runCycle performs one poll: fetch, diff, notify, merge, advance.
// Failures are logged and leave the cursor where it was.
func (m *Manager) runCycle(ctx context.Context, e *entry) {
	s := e.snapshot()

	batch, err := m.feed.Fetch(ctx, s.Handle, m.opts.FetchCount)
	if err != nil {
		if errors.Is(err, models.ErrFeedRejected) {
			slog.Warn("feed rejected submission request", "error", err, "session_id", s.ID, "handle", s.Handle)
		} else {
			slog.Error("failed to fetch submissions", "error", err, "session_id", s.ID, "handle", s.Handle)
		}
		return
	}

	fresh, next := Diff(s.Cursor, batch)
	fresh = aboveCursor(s, fresh)
	if len(fresh) == 0 {
		slog.Debug("no new submissions", "session_id", s.ID, "cursor", s.Cursor)
		return
	}

	slog.Info("new submissions found",
		"session_id", s.ID,
		"handle", s.Handle,
		"count", len(fresh),
		"cursor", s.Cursor,
		"next_cursor", next,
	)

	if err := m.deliver(ctx, e, s, fresh); err != nil {
		slog.Error("failed to deliver notification, cursor kept so the next cycle retries",
			"error", err,
			"session_id", s.ID,
			"chat_id", s.ChatID,
		)
		return
	}

	if err := m.persist(ctx, s, fresh); err != nil {
		failures := e.storeFailed()
		slog.Error("failed to persist submissions, cursor kept so the next cycle retries",
			"error", err,
			"session_id", s.ID,
			"sheet_id", s.SheetID,
			"count", len(fresh),
			"consecutive_failures", failures,
		)
		return
	}

	s, err = e.update(func(s *models.TrackingSession) error {
		return s.AdvanceCursor(next)
	})
	if err != nil {
		slog.Error("failed to advance cursor", "error", err, "session_id", s.ID)
		return
	}
	e.storeRecovered()

	m.saveSession(ctx, e, s)
	m.publish(ctx, s, fresh)
}

// aboveCursor drops submissions at or below the cursor. They show up when the
// cursor submission no longer exists upstream and Diff falls into its gap case.
func aboveCursor(s models.TrackingSession, fresh []models.Submission) []models.Submission {
	kept := fresh[:0:0]
	for _, sub := range fresh {
		if sub.ID > s.Cursor {
			kept = append(kept, sub)
		}
	}
	if dropped := len(fresh) - len(kept); dropped > 0 {
		slog.Warn("cursor submission missing from feed, ignoring older submissions",
			"session_id", s.ID,
			"handle", s.Handle,
			"cursor", s.Cursor,
			"dropped", dropped,
		)
	}
	return kept
}

// deliver sends fresh in order, skipping submissions already delivered by an
// earlier cycle whose persist step failed. It stops at the first failure.
func (m *Manager) deliver(ctx context.Context, e *entry, s models.TrackingSession, fresh []models.Submission) error {
	for _, sub := range fresh {
		if sub.ID <= e.deliveredUpTo() {
			continue
		}
		if err := m.notifier.Send(ctx, s.ChatID, FormatNotification(s.Handle, sub)); err != nil {
			return fmt.Errorf("submission %d: %w", sub.ID, err)
		}
		e.markDelivered(sub.ID)
	}
	return nil
}

// persist merges fresh into the sheet by read, clear and append.
// Merges into one sheet are serialized across sessions.
func (m *Manager) persist(ctx context.Context, s models.TrackingSession, fresh []models.Submission) error {
	g := m.sheetGuard(s.SheetID)
	g.mu.Lock()
	defer g.mu.Unlock()

	existing := g.pending
	if existing == nil {
		rows, err := m.store.ReadRows(ctx, s.SheetID, m.opts.ReadRange)
		if err != nil {
			return fmt.Errorf("%w: read rows: %w", models.ErrStoreUnavailable, err)
		}
		existing = rows
	} else {
		slog.Warn("retrying merge against rows kept from a failed append", "session_id", s.ID, "rows", len(existing))
	}

	combined := Merge(existing, fresh, s.Handle)

	if r, ok := m.store.(RowReplacer); ok {
		if err := r.ReplaceRows(ctx, s.SheetID, m.opts.ReadRange, combined); err != nil {
			return fmt.Errorf("%w: replace rows: %w", models.ErrStoreUnavailable, err)
		}
		g.pending = nil
		slog.Info("rows replaced", "session_id", s.ID, "sheet_id", s.SheetID, "rows", len(combined))
		return nil
	}

	if err := m.store.ClearRows(ctx, s.SheetID, m.opts.ReadRange); err != nil {
		return fmt.Errorf("%w: clear rows: %w", models.ErrStoreUnavailable, err)
	}

	if err := m.store.AppendRows(ctx, s.SheetID, m.opts.AppendRange, combined); err != nil {
		// The sheet is now empty; keep the rows so the retry does not read the empty sheet
		g.pending = nonNil(existing)
		return fmt.Errorf("%w: append rows after clear: %w", models.ErrStoreUnavailable, err)
	}
	g.pending = nil

	slog.Info("sheet updated", "session_id", s.ID, "sheet_id", s.SheetID, "rows", len(combined))
	return nil
}

func (m *Manager) publish(ctx context.Context, s models.TrackingSession, fresh []models.Submission) {
	if m.events == nil {
		return
	}
	now := m.now().UTC()
	for _, sub := range fresh {
		event := models.SubmissionEvent{
			SessionID:  s.ID,
			Owner:      s.Owner,
			Handle:     s.Handle,
			Submission: sub,
			DetectedAt: now,
		}
		if err := m.events.Publish(ctx, event); err != nil {
			slog.Error("failed to publish submission event", "error", err, "session_id", s.ID, "submission_id", sub.ID)
		}
	}
}

func nonNil(rows []models.SheetRow) []models.SheetRow {
	if rows == nil {
		return []models.SheetRow{}
	}
	return rows
}
