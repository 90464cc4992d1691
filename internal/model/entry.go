package model

import "time"

// EntryStatus is the closed set of states a queue entry moves through.
// Transitions are one-directional and validated in one place
// (CanTransitionTo); COMPLETED and CANCELLED are terminal.
type EntryStatus string

const (
	StatusWaiting   EntryStatus = "WAITING"
	StatusCalled    EntryStatus = "CALLED"
	StatusCompleted EntryStatus = "COMPLETED"
	StatusCancelled EntryStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the entry still occupies a place in the queue.
func (s EntryStatus) Active() bool {
	return s == StatusWaiting || s == StatusCalled
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle step: WAITING→CALLED→COMPLETED, or WAITING/CALLED→CANCELLED.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	switch next {
	case StatusCalled:
		return s == StatusWaiting
	case StatusCompleted:
		return s == StatusCalled || s == StatusWaiting
	case StatusCancelled:
		return s.Active()
	}
	return false
}

// QueueEntry is one party's place in a specific queue. Position is a
// ticket number assigned once at join time (max existing + 1) and never
// reassigned; the live rank is derived by counting WAITING entries with
// a smaller position. UserID is nil for anonymous joins.
//
// Fields:
//  ID          – primary key identifier.
//  QueueID     – owning queue.
//  UserID      – joining user, nil when anonymous.
//  Name        – display name for the party.
//  Phone       – optional contact number.
//  GroupSize   – party size, at least 1.
//  Position    – monotonically assigned ticket number.
//  Status      – lifecycle state, see EntryStatus.
//  CalledAt    – set when the entry is called.
//  CompletedAt – set when the entry is served.
//  CancelledAt – set when the entry is cancelled or removed.
//  CreatedAt   – timestamp of the join.
type QueueEntry struct {
	ID          uint64      `json:"id"`
	QueueID     uint64      `json:"queueId"`
	UserID      *uint64     `json:"userId"`
	Name        string      `json:"name"`
	Phone       *string     `json:"phone,omitempty"`
	GroupSize   int         `json:"groupSize"`
	Position    int         `json:"position"`
	Status      EntryStatus `json:"status"`
	CalledAt    *time.Time  `json:"calledAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	CancelledAt *time.Time  `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
