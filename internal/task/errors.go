package task

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrSnoozeNotAllowed  = errors.New("snooze not allowed for this task")
	ErrSnoozeLimit       = errors.New("snooze limit exceeded")
	ErrNotFired          = errors.New("task has not fired yet")
)
