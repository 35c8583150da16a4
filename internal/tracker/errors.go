package tracker

import "errors"

// Common errors
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already exists")
	ErrInitializationFailed = errors.New("session initialization failed")
	ErrEmptyHandle          = errors.New("handle is required")
	ErrEmptySheetID         = errors.New("sheet id is required")
)
