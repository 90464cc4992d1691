package realtime

import (
	"fmt"

	"github.com/queuekill/queuekill/internal/service"
)

// Event names pushed to clients.
const (
	EventQueueUpdated   = "queueUpdated"
	EventUserCalled     = "userCalled"
	EventPositionUpdate = "positionUpdate"
	EventQueueDeleted   = "queueDeleted"
)

// UserCalledPayload tells a user their party has been called.
type UserCalledPayload struct {
	EntryID  uint64 `json:"entryId"`
	QueueID  uint64 `json:"queueId"`
	Position int    `json:"position"`
}

// PositionUpdatePayload tells a user they moved to rank 1 or 3.
type PositionUpdatePayload struct {
	EntryID        uint64 `json:"entryId"`
	QueueID        uint64 `json:"queueId"`
	QueueName      string `json:"queueName"`
	RestaurantName string `json:"restaurantName"`
	NewPosition    int    `json:"newPosition"`
	Message        string `json:"message"`
}

// QueueDeletedPayload tells viewers and queued users the queue is gone.
type QueueDeletedPayload struct {
	QueueID        uint64 `json:"queueId"`
	QueueName      string `json:"queueName"`
	RestaurantName string `json:"restaurantName"`
	Message        string `json:"message"`
}

// Notifier translates service results into room broadcasts. Every
// method is fire and forget; pushes never influence request outcomes.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// QueueUpdated pushes the full queue state to everyone viewing it.
func (n *Notifier) QueueUpdated(detail service.QueueDetail) {
	n.hub.Emit(QueueRoom(detail.ID), EventQueueUpdated, detail)
}

// UserCalled notifies the called party in their personal room.
func (n *Notifier) UserCalled(userID uint64, p UserCalledPayload) {
	n.hub.Emit(UserRoom(userID), EventUserCalled, p)
}

// PositionUpdates sends rank notifications to the waiting parties the
// service picked out after a mutation.
func (n *Notifier) PositionUpdates(notices []service.PositionNotice) {
	for _, notice := range notices {
		if notice.Entry.UserID == nil {
			continue
		}
		p := PositionUpdatePayload{
			EntryID:        notice.Entry.ID,
			QueueID:        notice.Entry.QueueID,
			QueueName:      notice.QueueName,
			RestaurantName: notice.RestaurantName,
			NewPosition:    notice.NewPosition,
			Message:        positionMessage(notice.NewPosition, notice.RestaurantName),
		}
		n.hub.Emit(UserRoom(*notice.Entry.UserID), EventPositionUpdate, p)
	}
}

// QueueDeleted notifies viewers of the queue page and each user who
// still had an active entry.
func (n *Notifier) QueueDeleted(deleted service.DeletedQueue) {
	p := QueueDeletedPayload{
		QueueID:        deleted.Queue.ID,
		QueueName:      deleted.Queue.Name,
		RestaurantName: deleted.Restaurant.Name,
		Message:        fmt.Sprintf("The queue %q at %s has been closed.", deleted.Queue.Name, deleted.Restaurant.Name),
	}
	n.hub.Emit(QueueRoom(deleted.Queue.ID), EventQueueDeleted, p)

	// Users still in line get a personal variant on top of the room
	// broadcast.
	personal := p
	personal.Message += " You have been removed from the queue."
	for _, userID := range deleted.ActiveUserIDs {
		n.hub.Emit(UserRoom(userID), EventQueueDeleted, personal)
	}
}

func positionMessage(rank int, restaurant string) string {
	switch rank {
	case 1:
		return fmt.Sprintf("🔔 You're next! Get ready at %s", restaurant)
	default:
		return fmt.Sprintf("⏳ Almost there! You're #%d in line at %s", rank, restaurant)
	}
}
