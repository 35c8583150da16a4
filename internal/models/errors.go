package models

import "errors"

// Errors shared between the feed, the stores and the tracker
var (
	ErrFeedUnavailable   = errors.New("submission feed unavailable")
	ErrFeedRejected      = errors.New("submission feed rejected request")
	ErrStoreUnavailable  = errors.New("tabular store unavailable")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrCursorRegression  = errors.New("cursor cannot move backwards")
)
