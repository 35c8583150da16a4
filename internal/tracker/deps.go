package tracker

import (
	"context"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// FeedClient fetches the latest submissions of a handle, newest first.
// Failures wrap models.ErrFeedUnavailable or models.ErrFeedRejected.
type FeedClient interface {
	Fetch(ctx context.Context, handle string, count int) ([]models.Submission, error)
}

// TabularStore is the spreadsheet-like persistence target. There is no upsert, callers
// read, clear and append. The Manager serializes its own merges per store id; writers
// outside the process are not expected between those calls.
type TabularStore interface {
	ReadRows(ctx context.Context, storeID, rng string) ([]models.SheetRow, error)
	ClearRows(ctx context.Context, storeID, rng string) error
	AppendRows(ctx context.Context, storeID, rng string, rows []models.SheetRow) error
}

// RowReplacer is implemented by stores that can clear and append atomically.
// When present it replaces the separate clear and append calls.
type RowReplacer interface {
	ReplaceRows(ctx context.Context, storeID, rng string, rows []models.SheetRow) error
}

// Notifier delivers text to a chat
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SessionStore persists sessions across restarts
type SessionStore interface {
	Save(ctx context.Context, s models.TrackingSession) error
	Delete(ctx context.Context, owner string) error
	List(ctx context.Context) ([]models.TrackingSession, error)
}

// EventPublisher receives every newly detected submission
type EventPublisher interface {
	Publish(ctx context.Context, event models.SubmissionEvent) error
}
