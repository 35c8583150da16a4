package models

import (
	"fmt"
	"time"
)

// SessionState represents the current state of a tracking session
type SessionState string

const (
	SessionAwaitingHandle  SessionState = "awaiting_handle"   // Waiting for the Codeforces handle
	SessionAwaitingSheetID SessionState = "awaiting_sheet_id" // Waiting for the spreadsheet id
	SessionInitializing    SessionState = "initializing"      // Seed fetch in progress
	SessionReady           SessionState = "ready"             // Polling
)

// TrackingSession tracks one Codeforces handle for one chat.
// Created on first interaction, destroyed on stop; the cursor only moves forward.
type TrackingSession struct {
	ID        string       `json:"id"`
	Owner     string       `json:"owner"`
	ChatID    int64        `json:"chat_id"`
	Handle    string       `json:"handle,omitempty"`
	SheetID   string       `json:"sheet_id,omitempty"`
	Cursor    int64        `json:"cursor,omitempty"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewTrackingSession returns a session waiting for its handle
func NewTrackingSession(id, owner string, chatID int64, now time.Time) *TrackingSession {
	return &TrackingSession{
		ID:        id,
		Owner:     owner,
		ChatID:    chatID,
		State:     SessionAwaitingHandle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsReady returns true if the session is polling
func (s *TrackingSession) IsReady() bool {
	return s.State == SessionReady
}

// HasCursor returns true once the seed cursor is established
func (s *TrackingSession) HasCursor() bool {
	return s.Cursor > 0
}

// SetHandle moves awaiting_handle -> awaiting_sheet_id
func (s *TrackingSession) SetHandle(handle string, now time.Time) error {
	if err := s.transition(SessionAwaitingHandle, SessionAwaitingSheetID, now); err != nil {
		return err
	}
	s.Handle = handle
	return nil
}

// SetSheetID moves awaiting_sheet_id -> initializing
func (s *TrackingSession) SetSheetID(sheetID string, now time.Time) error {
	if err := s.transition(SessionAwaitingSheetID, SessionInitializing, now); err != nil {
		return err
	}
	s.SheetID = sheetID
	return nil
}

// MarkReady moves initializing -> ready with the seed cursor
func (s *TrackingSession) MarkReady(seed int64, now time.Time) error {
	if err := s.transition(SessionInitializing, SessionReady, now); err != nil {
		return err
	}
	s.Cursor = seed
	return nil
}

// AdvanceCursor moves the cursor forward. Equal ids are a no-op.
func (s *TrackingSession) AdvanceCursor(id int64) error {
	if id < s.Cursor {
		return fmt.Errorf("%w: %d -> %d", ErrCursorRegression, s.Cursor, id)
	}
	s.Cursor = id
	return nil
}

// StateAge returns how long the session has been in its current state
func (s *TrackingSession) StateAge(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

func (s *TrackingSession) transition(from, to SessionState, now time.Time) error {
	if s.State != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	s.UpdatedAt = now
	return nil
}

// TrackRequest starts tracking in one step (API and tracking file)
type TrackRequest struct {
	Owner   string `json:"owner" yaml:"owner"`
	ChatID  int64  `json:"chat_id" yaml:"chat_id"`
	Handle  string `json:"handle" yaml:"handle"`
	SheetID string `json:"sheet_id" yaml:"sheet_id"`
}
