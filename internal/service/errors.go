package service

import "errors"

// ErrQueueInactive is returned when a customer tries to join a queue
// whose owner has deactivated it.
var ErrQueueInactive = errors.New("queue is not active")

// ErrAlreadyQueued is returned when an authenticated user who already
// holds an active entry in a queue tries to join it again.
var ErrAlreadyQueued = errors.New("already in this queue")

// ErrEntryClosed is returned when completing or removing an entry that
// has already reached a terminal status.
var ErrEntryClosed = errors.New("entry is already completed or cancelled")
