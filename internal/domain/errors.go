package domain

import "errors"

var (
	// ErrCatalogueUnavailable means the backing catalogue data could not be
	// loaded or parsed. Fatal at startup; nothing else can run without it.
	ErrCatalogueUnavailable = errors.New("test catalogue unavailable")
	// ErrTestNotFound is returned when a test name is not in the catalogue.
	ErrTestNotFound = errors.New("test not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSessionNotFound is returned for a stale or unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionPaused is returned when an operation requires an active session.
	ErrSessionPaused = errors.New("session is paused")
	// ErrSessionNotPaused is returned when resume targets an active session.
	ErrSessionNotPaused = errors.New("session is not paused")
	// ErrNoArchiveForUser means the user has no archived attempts yet.
	ErrNoArchiveForUser = errors.New("no archived attempts for user")
	// ErrArchiveWriteFailed wraps I/O failures while persisting a snapshot.
	ErrArchiveWriteFailed = errors.New("archive write failed")
	// ErrInvalidFlagColor is returned for flag colors outside red/yellow/green/none.
	ErrInvalidFlagColor = errors.New("invalid flag color")
)
