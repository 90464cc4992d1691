// Package events defines the audit messages published to the message
// broker whenever a queue entry changes state.
package events

// Queue entry actions carried in a QueueEvent.
const (
	ActionJoined    = "joined"
	ActionCalled    = "called"
	ActionCompleted = "completed"
	ActionCancelled = "cancelled"
	ActionDeleted   = "queue_deleted"
)

// QueueEvent is published after a queue mutation commits. It carries
// enough context for downstream consumers to log or trigger analytics
// without querying the primary database.
type QueueEvent struct {
	Action         string  `json:"action"`
	EntryID        uint64  `json:"entry_id,omitempty"`
	QueueID        uint64  `json:"queue_id"`
	QueueName      string  `json:"queue_name"`
	RestaurantID   uint64  `json:"restaurant_id"`
	RestaurantName string  `json:"restaurant_name"`
	UserID         *uint64 `json:"user_id,omitempty"`
	PartyName      string  `json:"party_name,omitempty"`
	GroupSize      int     `json:"group_size,omitempty"`
	Position       int     `json:"position,omitempty"`
	OccurredAt     string  `json:"occurred_at"`
}
