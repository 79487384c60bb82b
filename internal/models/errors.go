package models

import "errors"

// Task-level failure taxonomy. Callers wrap these with %w and match with errors.Is.
var (
	// ErrAuthentication means login controls were missing, credentials were rejected
	// or a challenge could not be solved. Never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNavigationTimeout means the page never reached the expected state.
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrExtractionPartial means a polling ceiling was hit or a subtree was missing.
	// Recorded as a warning on the result.
	ErrExtractionPartial = errors.New("extraction partial")

	// ErrActionPrecondition means a compose control was missing or the channel is not offered.
	ErrActionPrecondition = errors.New("action precondition failed")

	// ErrSentUnconfirmed means the send button was clicked but the attempt failed
	// afterwards, so the message may have been posted. Never retried.
	ErrSentUnconfirmed = errors.New("message submitted but not confirmed")

	// ErrPoolExhausted means no browser slot was granted before the deadline.
	ErrPoolExhausted = errors.New("browser pool exhausted")

	// ErrTaskTimeout means the attempt deadline expired.
	ErrTaskTimeout = errors.New("task timeout")

	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrResultReleased means the task succeeded but its result was already collected
	// or its retention window lapsed.
	ErrResultReleased = errors.New("task result released")

	// ErrQueueStopped is returned when submitting to a stopped queue.
	ErrQueueStopped = errors.New("queue stopped")
)
