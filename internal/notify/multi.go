// Package notify fans notifications out to several destinations.
package notify

import (
	"context"
	"errors"

	"github.com/PatGB5/codeforces-submission-bot/internal/tracker"
)

// Multi sends every message to all of its notifiers
type Multi struct {
	notifiers []tracker.Notifier
}

// NewMulti creates a fan-out notifier. Nil notifiers are skipped.
func NewMulti(notifiers ...tracker.Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Send delivers to every notifier and joins their errors
func (m *Multi) Send(ctx context.Context, chatID int64, text string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, chatID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
