// Package service holds the queue business logic: it enforces the
// entry lifecycle and position invariants and leaves broadcasting to
// the caller, so every mutation is persisted before anything is
// emitted.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/queuekill/queuekill/internal/model"
	"github.com/queuekill/queuekill/internal/repository"
)

// waitMinutesPerParty is the fixed per-party estimate used for the
// customer-facing wait time.
const waitMinutesPerParty = 5

// RestaurantStore is the slice of the restaurant repository the queue
// service needs.
type RestaurantStore interface {
	GetByID(ctx context.Context, id uint64) (model.Restaurant, error)
	GetByOwner(ctx context.Context, ownerID uint64) (model.Restaurant, error)
}

// QueueStore is the slice of the queue repository the queue service
// needs. DeleteCascade removes the queue and its entries atomically and
// reports the user IDs that still held an active entry.
type QueueStore interface {
	Create(ctx context.Context, q *model.Queue) error
	GetByID(ctx context.Context, id uint64) (model.Queue, error)
	ListByRestaurant(ctx context.Context, restaurantID uint64) ([]model.Queue, error)
	DeleteCascade(ctx context.Context, queueID uint64) ([]uint64, error)
}

// EntryStore is the slice of the entry repository the queue service
// needs. InsertWithNextPosition assigns max(position)+1 atomically.
type EntryStore interface {
	InsertWithNextPosition(ctx context.Context, e *model.QueueEntry) error
	GetByID(ctx context.Context, id uint64) (model.QueueEntry, error)
	ActiveByQueueAndUser(ctx context.Context, queueID, userID uint64) (*model.QueueEntry, error)
	FirstWaiting(ctx context.Context, queueID uint64) (*model.QueueEntry, error)
	UpdateStatus(ctx context.Context, id uint64, status model.EntryStatus, at time.Time) error
	ListByQueue(ctx context.Context, queueID uint64) ([]model.QueueEntry, error)
	WaitingWithUser(ctx context.Context, queueID uint64) ([]model.QueueEntry, error)
	ListActiveByUser(ctx context.Context, userID uint64) ([]model.QueueEntry, error)
	CountWaitingBefore(ctx context.Context, queueID uint64, position int) (int, error)
}

// QueueService implements the queue-entry lifecycle over the three
// stores. It performs no broadcasting itself.
type QueueService struct {
	restaurants RestaurantStore
	queues      QueueStore
	entries     EntryStore
}

func NewQueueService(restaurants RestaurantStore, queues QueueStore, entries EntryStore) *QueueService {
	return &QueueService{restaurants: restaurants, queues: queues, entries: entries}
}

// QueueDetail is a queue with its restaurant and all entries ordered by
// position ascending. The payload broadcast to queue rooms and returned
// by the queue endpoints.
type QueueDetail struct {
	model.Queue
	Restaurant model.Restaurant   `json:"restaurant"`
	Entries    []model.QueueEntry `json:"entries"`
}

// JoinInput carries the party details supplied at join time.
type JoinInput struct {
	Name      string
	Phone     *string
	GroupSize int
}

// ActiveEntry decorates one of a user's active entries with its queue,
// restaurant and the derived rank/ETA numbers.
type ActiveEntry struct {
	model.QueueEntry
	Queue         model.Queue      `json:"queue"`
	Restaurant    model.Restaurant `json:"restaurant"`
	PositionAhead int              `json:"positionAhead"`
	EstimatedWait int              `json:"estimatedWait"`
}

// DeletedQueue reports what DeleteQueue removed and whom to notify.
type DeletedQueue struct {
	Queue         model.Queue
	Restaurant    model.Restaurant
	ActiveUserIDs []uint64
}

// PositionNotice identifies a waiting party that just reached rank 1 or
// rank 3 and should receive a position notification.
type PositionNotice struct {
	Entry          model.QueueEntry
	NewPosition    int
	QueueName      string
	RestaurantName string
}

// CreateQueue creates a queue under the owner's restaurant. Fails with
// the restaurant's not-found error when the owner has none.
func (s *QueueService) CreateQueue(ctx context.Context, ownerID uint64, name string) (model.Queue, error) {
	rest, err := s.restaurants.GetByOwner(ctx, ownerID)
	if err != nil {
		return model.Queue{}, err
	}
	q := model.Queue{RestaurantID: rest.ID, Name: name}
	if err := s.queues.Create(ctx, &q); err != nil {
		return model.Queue{}, fmt.Errorf("create queue: %w", err)
	}
	return q, nil
}

// QueueDetail loads a queue with its restaurant and ordered entries.
func (s *QueueService) QueueDetail(ctx context.Context, queueID uint64) (QueueDetail, error) {
	q, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return QueueDetail{}, err
	}
	rest, err := s.restaurants.GetByID(ctx, q.RestaurantID)
	if err != nil {
		return QueueDetail{}, err
	}
	entries, err := s.entries.ListByQueue(ctx, queueID)
	if err != nil {
		return QueueDetail{}, err
	}
	return QueueDetail{Queue: q, Restaurant: rest, Entries: entries}, nil
}

// JoinQueue places a party at the back of the queue. userID is nil for
// anonymous joins. Fails when the queue is absent or inactive, or when
// the authenticated user already holds an active entry in it. The new
// entry's position is one past the current maximum, assigned
// atomically by the store.
func (s *QueueService) JoinQueue(ctx context.Context, queueID uint64, userID *uint64, in JoinInput) (model.QueueEntry, error) {
	q, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	if !q.IsActive {
		return model.QueueEntry{}, ErrQueueInactive
	}
	if userID != nil {
		existing, err := s.entries.ActiveByQueueAndUser(ctx, queueID, *userID)
		if err != nil {
			return model.QueueEntry{}, err
		}
		if existing != nil {
			return model.QueueEntry{}, ErrAlreadyQueued
		}
	}
	e := model.QueueEntry{
		QueueID:   queueID,
		UserID:    userID,
		Name:      in.Name,
		Phone:     in.Phone,
		GroupSize: in.GroupSize,
	}
	if err := s.entries.InsertWithNextPosition(ctx, &e); err != nil {
		return model.QueueEntry{}, fmt.Errorf("join queue: %w", err)
	}
	return e, nil
}

// LeaveQueue cancels the requester's own entry. Only the user who
// created the entry may cancel it through this path; anonymous entries
// have no owning user and can never be self-cancelled.
func (s *QueueService) LeaveQueue(ctx context.Context, entryID, requesterID uint64) (model.QueueEntry, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	if e.UserID == nil || *e.UserID != requesterID {
		return model.QueueEntry{}, repository.ErrForbidden
	}
	return s.transition(ctx, e, model.StatusCancelled)
}

// CallNext moves the WAITING entry with the smallest position to
// CALLED, after checking the queue belongs to ownerID. Returns nil
// without error when nobody is waiting.
func (s *QueueService) CallNext(ctx context.Context, queueID, ownerID uint64) (*model.QueueEntry, error) {
	if _, _, err := s.VerifyQueueOwnership(ctx, queueID, ownerID); err != nil {
		return nil, err
	}
	next, err := s.entries.FirstWaiting(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	called, err := s.transition(ctx, *next, model.StatusCalled)
	if err != nil {
		return nil, err
	}
	return &called, nil
}

// CompleteEntry marks an entry as served. Only the owner of the
// entry's queue may complete it; already-terminal entries fail with
// ErrEntryClosed.
func (s *QueueService) CompleteEntry(ctx context.Context, entryID, ownerID uint64) (model.QueueEntry, error) {
	e, err := s.ownedEntry(ctx, entryID, ownerID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	return s.transition(ctx, e, model.StatusCompleted)
}

// RemoveEntry cancels an entry on the owner's behalf (no-show or manual
// removal). Storage-wise identical to a customer cancel.
func (s *QueueService) RemoveEntry(ctx context.Context, entryID, ownerID uint64) (model.QueueEntry, error) {
	e, err := s.ownedEntry(ctx, entryID, ownerID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	return s.transition(ctx, e, model.StatusCancelled)
}

func (s *QueueService) ownedEntry(ctx context.Context, entryID, ownerID uint64) (model.QueueEntry, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	if _, _, err := s.VerifyQueueOwnership(ctx, e.QueueID, ownerID); err != nil {
		return model.QueueEntry{}, err
	}
	return e, nil
}

// transition is the single mutation point for entry status. It rejects
// illegal lifecycle steps before touching the store.
func (s *QueueService) transition(ctx context.Context, e model.QueueEntry, next model.EntryStatus) (model.QueueEntry, error) {
	if !e.Status.CanTransitionTo(next) {
		return model.QueueEntry{}, ErrEntryClosed
	}
	now := time.Now().UTC()
	if err := s.entries.UpdateStatus(ctx, e.ID, next, now); err != nil {
		return model.QueueEntry{}, err
	}
	e.Status = next
	switch next {
	case model.StatusCalled:
		e.CalledAt = &now
	case model.StatusCompleted:
		e.CompletedAt = &now
	case model.StatusCancelled:
		e.CancelledAt = &now
	}
	return e, nil
}

// VerifyQueueOwnership loads the queue and checks that its restaurant
// belongs to ownerID.
func (s *QueueService) VerifyQueueOwnership(ctx context.Context, queueID, ownerID uint64) (model.Queue, model.Restaurant, error) {
	q, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return model.Queue{}, model.Restaurant{}, err
	}
	rest, err := s.restaurants.GetByID(ctx, q.RestaurantID)
	if err != nil {
		return model.Queue{}, model.Restaurant{}, err
	}
	if rest.OwnerID != ownerID {
		return model.Queue{}, model.Restaurant{}, repository.ErrForbidden
	}
	return q, rest, nil
}

// DeleteQueue removes the queue and all of its entries after an
// ownership check, reporting which users still held an active entry so
// the caller can notify them directly.
func (s *QueueService) DeleteQueue(ctx context.Context, queueID, ownerID uint64) (DeletedQueue, error) {
	q, rest, err := s.VerifyQueueOwnership(ctx, queueID, ownerID)
	if err != nil {
		return DeletedQueue{}, err
	}
	userIDs, err := s.queues.DeleteCascade(ctx, queueID)
	if err != nil {
		return DeletedQueue{}, fmt.Errorf("delete queue: %w", err)
	}
	return DeletedQueue{Queue: q, Restaurant: rest, ActiveUserIDs: userIDs}, nil
}

// PositionNotifications returns the waiting parties currently at rank 1
// and rank 3 (among WAITING entries that belong to a user), so the
// caller can push "you're next" / "almost there" messages after a
// mutation. Rank is list order, not the stored position.
func (s *QueueService) PositionNotifications(ctx context.Context, queueID uint64) ([]PositionNotice, error) {
	q, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	rest, err := s.restaurants.GetByID(ctx, q.RestaurantID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.entries.WaitingWithUser(ctx, queueID)
	if err != nil {
		return nil, err
	}
	notices := []PositionNotice{}
	if len(waiting) > 0 {
		notices = append(notices, PositionNotice{Entry: waiting[0], NewPosition: 1, QueueName: q.Name, RestaurantName: rest.Name})
	}
	if len(waiting) > 2 {
		notices = append(notices, PositionNotice{Entry: waiting[2], NewPosition: 3, QueueName: q.Name, RestaurantName: rest.Name})
	}
	return notices, nil
}

// ActiveEntriesForUser returns the user's WAITING/CALLED entries with
// the live rank-ahead count and the derived wait estimate.
func (s *QueueService) ActiveEntriesForUser(ctx context.Context, userID uint64) ([]ActiveEntry, error) {
	entries, err := s.entries.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []ActiveEntry{}
	for _, e := range entries {
		q, err := s.queues.GetByID(ctx, e.QueueID)
		if err != nil {
			return nil, err
		}
		rest, err := s.restaurants.GetByID(ctx, q.RestaurantID)
		if err != nil {
			return nil, err
		}
		ahead, err := s.entries.CountWaitingBefore(ctx, e.QueueID, e.Position)
		if err != nil {
			return nil, err
		}
		out = append(out, ActiveEntry{
			QueueEntry:    e,
			Queue:         q,
			Restaurant:    rest,
			PositionAhead: ahead,
			EstimatedWait: ahead * waitMinutesPerParty,
		})
	}
	return out, nil
}

// QueuesByOwner returns the owner's queues, each with restaurant and
// ordered entries. An owner without a restaurant gets an empty list.
func (s *QueueService) QueuesByOwner(ctx context.Context, ownerID uint64) ([]QueueDetail, error) {
	rest, err := s.restaurants.GetByOwner(ctx, ownerID)
	if err != nil {
		if err == repository.ErrRestaurantNotFound {
			return []QueueDetail{}, nil
		}
		return nil, err
	}
	queues, err := s.queues.ListByRestaurant(ctx, rest.ID)
	if err != nil {
		return nil, err
	}
	out := []QueueDetail{}
	for _, q := range queues {
		entries, err := s.entries.ListByQueue(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, QueueDetail{Queue: q, Restaurant: rest, Entries: entries})
	}
	return out, nil
}

// RestaurantByOwner exposes the owner's restaurant lookup to handlers.
func (s *QueueService) RestaurantByOwner(ctx context.Context, ownerID uint64) (model.Restaurant, error) {
	return s.restaurants.GetByOwner(ctx, ownerID)
}
