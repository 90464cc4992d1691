package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuekill/queuekill/internal/model"
	"github.com/queuekill/queuekill/internal/repository"
)

// In-memory stores implementing the same contracts as the SQL
// repositories, so the lifecycle rules can be tested without a
// database.

type fakeRestaurantStore struct {
	restaurants map[uint64]model.Restaurant
}

func (f *fakeRestaurantStore) GetByID(_ context.Context, id uint64) (model.Restaurant, error) {
	r, ok := f.restaurants[id]
	if !ok {
		return model.Restaurant{}, repository.ErrRestaurantNotFound
	}
	return r, nil
}

func (f *fakeRestaurantStore) GetByOwner(_ context.Context, ownerID uint64) (model.Restaurant, error) {
	for _, r := range f.restaurants {
		if r.OwnerID == ownerID {
			return r, nil
		}
	}
	return model.Restaurant{}, repository.ErrRestaurantNotFound
}

type fakeQueueStore struct {
	queues  map[uint64]model.Queue
	entries *fakeEntryStore
	nextID  uint64
}

func (f *fakeQueueStore) Create(_ context.Context, q *model.Queue) error {
	f.nextID++
	q.ID = f.nextID
	q.CreatedAt = time.Now().UTC()
	f.queues[q.ID] = *q
	return nil
}

func (f *fakeQueueStore) GetByID(_ context.Context, id uint64) (model.Queue, error) {
	q, ok := f.queues[id]
	if !ok {
		return model.Queue{}, repository.ErrQueueNotFound
	}
	return q, nil
}

func (f *fakeQueueStore) ListByRestaurant(_ context.Context, restaurantID uint64) ([]model.Queue, error) {
	out := []model.Queue{}
	for _, q := range f.queues {
		if q.RestaurantID == restaurantID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeQueueStore) DeleteCascade(_ context.Context, queueID uint64) ([]uint64, error) {
	if _, ok := f.queues[queueID]; !ok {
		return nil, repository.ErrQueueNotFound
	}
	seen := map[uint64]bool{}
	userIDs := []uint64{}
	for id, e := range f.entries.entries {
		if e.QueueID != queueID {
			continue
		}
		if e.Status.Active() && e.UserID != nil && !seen[*e.UserID] {
			seen[*e.UserID] = true
			userIDs = append(userIDs, *e.UserID)
		}
		delete(f.entries.entries, id)
	}
	delete(f.queues, queueID)
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	return userIDs, nil
}

type fakeEntryStore struct {
	entries map[uint64]model.QueueEntry
	nextID  uint64
}

func (f *fakeEntryStore) InsertWithNextPosition(_ context.Context, e *model.QueueEntry) error {
	max := 0
	for _, other := range f.entries {
		if other.QueueID == e.QueueID && other.Position > max {
			max = other.Position
		}
	}
	f.nextID++
	e.ID = f.nextID
	e.Position = max + 1
	e.Status = model.StatusWaiting
	e.CreatedAt = time.Now().UTC()
	f.entries[e.ID] = *e
	return nil
}

func (f *fakeEntryStore) GetByID(_ context.Context, id uint64) (model.QueueEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return model.QueueEntry{}, repository.ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeEntryStore) ActiveByQueueAndUser(_ context.Context, queueID, userID uint64) (*model.QueueEntry, error) {
	for _, e := range f.entries {
		if e.QueueID == queueID && e.UserID != nil && *e.UserID == userID && e.Status.Active() {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeEntryStore) FirstWaiting(_ context.Context, queueID uint64) (*model.QueueEntry, error) {
	var best *model.QueueEntry
	for _, e := range f.entries {
		if e.QueueID != queueID || e.Status != model.StatusWaiting {
			continue
		}
		if best == nil || e.Position < best.Position {
			found := e
			best = &found
		}
	}
	return best, nil
}

func (f *fakeEntryStore) UpdateStatus(_ context.Context, id uint64, status model.EntryStatus, at time.Time) error {
	e, ok := f.entries[id]
	if !ok {
		return repository.ErrEntryNotFound
	}
	e.Status = status
	switch status {
	case model.StatusCalled:
		e.CalledAt = &at
	case model.StatusCompleted:
		e.CompletedAt = &at
	case model.StatusCancelled:
		e.CancelledAt = &at
	}
	f.entries[id] = e
	return nil
}

func (f *fakeEntryStore) ListByQueue(_ context.Context, queueID uint64) ([]model.QueueEntry, error) {
	out := []model.QueueEntry{}
	for _, e := range f.entries {
		if e.QueueID == queueID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeEntryStore) WaitingWithUser(_ context.Context, queueID uint64) ([]model.QueueEntry, error) {
	out := []model.QueueEntry{}
	for _, e := range f.entries {
		if e.QueueID == queueID && e.Status == model.StatusWaiting && e.UserID != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeEntryStore) ListActiveByUser(_ context.Context, userID uint64) ([]model.QueueEntry, error) {
	out := []model.QueueEntry{}
	for _, e := range f.entries {
		if e.UserID != nil && *e.UserID == userID && e.Status.Active() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEntryStore) CountWaitingBefore(_ context.Context, queueID uint64, position int) (int, error) {
	n := 0
	for _, e := range f.entries {
		if e.QueueID == queueID && e.Status == model.StatusWaiting && e.Position < position {
			n++
		}
	}
	return n, nil
}

func uptr(v uint64) *uint64 { return &v }

// newTestService wires the fakes with one restaurant (ID 1, owner 10)
// and one active queue (ID 1).
func newTestService(t *testing.T) (*QueueService, *fakeQueueStore, *fakeEntryStore) {
	t.Helper()
	entries := &fakeEntryStore{entries: map[uint64]model.QueueEntry{}}
	queues := &fakeQueueStore{
		queues: map[uint64]model.Queue{
			1: {ID: 1, RestaurantID: 1, Name: "Dinner", IsActive: true},
		},
		entries: entries,
		nextID:  1,
	}
	restaurants := &fakeRestaurantStore{
		restaurants: map[uint64]model.Restaurant{
			1: {ID: 1, OwnerID: 10, Name: "Mama Rosa", Address: "1 Main St"},
		},
	}
	return NewQueueService(restaurants, queues, entries), queues, entries
}

func TestJoinQueueAssignsIncreasingPositions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var positions []int
	for i := 0; i < 4; i++ {
		e, err := svc.JoinQueue(ctx, 1, nil, JoinInput{Name: "Guest", GroupSize: 2})
		require.NoError(t, err)
		positions = append(positions, e.Position)
		assert.Equal(t, model.StatusWaiting, e.Status)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, positions)
}

func TestJoinQueuePositionsNeverReused(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	_, err = svc.JoinQueue(ctx, 1, uptr(101), JoinInput{Name: "Bob", GroupSize: 3})
	require.NoError(t, err)

	_, err = svc.LeaveQueue(ctx, first.ID, 100)
	require.NoError(t, err)

	third, err := svc.JoinQueue(ctx, 1, uptr(102), JoinInput{Name: "Cara", GroupSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, third.Position)
}

func TestJoinQueueRejectsInactive(t *testing.T) {
	svc, queues, _ := newTestService(t)
	q := queues.queues[1]
	q.IsActive = false
	queues.queues[1] = q

	_, err := svc.JoinQueue(context.Background(), 1, nil, JoinInput{Name: "Guest", GroupSize: 1})
	assert.ErrorIs(t, err, ErrQueueInactive)
}

func TestJoinQueueRejectsDuplicateActiveEntry(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)

	_, err = svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	// Once the old entry is cancelled the same user may rejoin.
	_, err = svc.LeaveQueue(ctx, entry.ID, 100)
	require.NoError(t, err)
	_, err = svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	assert.NoError(t, err)
}

func TestJoinQueueUnknownQueue(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.JoinQueue(context.Background(), 99, nil, JoinInput{Name: "Guest", GroupSize: 1})
	assert.ErrorIs(t, err, repository.ErrQueueNotFound)
}

func TestCallNextIsFIFO(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	b, err := svc.JoinQueue(ctx, 1, uptr(101), JoinInput{Name: "Bob", GroupSize: 3})
	require.NoError(t, err)

	first, err := svc.CallNext(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, a.ID, first.ID)
	assert.Equal(t, model.StatusCalled, first.Status)
	require.NotNil(t, first.CalledAt)

	second, err := svc.CallNext(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, b.ID, second.ID)
}

func TestCallNextEmptyQueueReturnsNil(t *testing.T) {
	svc, _, _ := newTestService(t)
	called, err := svc.CallNext(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Nil(t, called)
}

func TestCallNextForbiddenForNonOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CallNext(context.Background(), 1, 999)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestCompleteEntryLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)

	called, err := svc.CallNext(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, called)

	done, err := svc.CompleteEntry(ctx, e.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// Terminal entries reject any further transition.
	_, err = svc.CompleteEntry(ctx, e.ID, 10)
	assert.ErrorIs(t, err, ErrEntryClosed)
	_, err = svc.RemoveEntry(ctx, e.ID, 10)
	assert.ErrorIs(t, err, ErrEntryClosed)
}

func TestCompleteEntryForbiddenForNonOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)

	_, err = svc.CompleteEntry(ctx, e.ID, 999)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	_, err = svc.RemoveEntry(ctx, e.ID, 999)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestCompleteCancelledEntryFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	_, err = svc.LeaveQueue(ctx, e.ID, 100)
	require.NoError(t, err)

	_, err = svc.CompleteEntry(ctx, e.ID, 10)
	assert.ErrorIs(t, err, ErrEntryClosed)
}

func TestLeaveQueueOwnershipChecks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mine, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	anon, err := svc.JoinQueue(ctx, 1, nil, JoinInput{Name: "Walk-in", GroupSize: 1})
	require.NoError(t, err)

	// Another user's entry.
	_, err = svc.LeaveQueue(ctx, mine.ID, 999)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	// Anonymous entries have no owner to match.
	_, err = svc.LeaveQueue(ctx, anon.ID, 100)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	left, err := svc.LeaveQueue(ctx, mine.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, left.Status)
	require.NotNil(t, left.CancelledAt)
}

func TestLeaveQueueAlreadyClosed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	_, err = svc.LeaveQueue(ctx, e.ID, 100)
	require.NoError(t, err)

	_, err = svc.LeaveQueue(ctx, e.ID, 100)
	assert.ErrorIs(t, err, ErrEntryClosed)
}

func TestActiveEntriesForUserRankAndWait(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Alice joins first, Bob second, then two anonymous parties.
	alice, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	bob, err := svc.JoinQueue(ctx, 1, uptr(101), JoinInput{Name: "Bob", GroupSize: 3})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = svc.JoinQueue(ctx, 1, nil, JoinInput{Name: "Walk-in", GroupSize: 1})
		require.NoError(t, err)
	}

	got, err := svc.ActiveEntriesForUser(ctx, 101)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bob.ID, got[0].QueueEntry.ID)
	assert.Equal(t, 1, got[0].PositionAhead)
	assert.Equal(t, 5, got[0].EstimatedWait)
	assert.Equal(t, "Mama Rosa", got[0].Restaurant.Name)

	// Alice cancels. Bob's rank ahead drops to zero even though his
	// stored position is unchanged.
	_, err = svc.LeaveQueue(ctx, alice.ID, 100)
	require.NoError(t, err)

	got, err = svc.ActiveEntriesForUser(ctx, 101)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].QueueEntry.Position)
	assert.Equal(t, 0, got[0].PositionAhead)
	assert.Equal(t, 0, got[0].EstimatedWait)
}

func TestPositionNotificationsRanksOneAndThree(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Five registered parties waiting.
	ids := make([]uint64, 0, 5)
	for i := uint64(0); i < 5; i++ {
		e, err := svc.JoinQueue(ctx, 1, uptr(100+i), JoinInput{Name: "Party", GroupSize: 2})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	notices, err := svc.PositionNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, ids[0], notices[0].Entry.ID)
	assert.Equal(t, 1, notices[0].NewPosition)
	assert.Equal(t, ids[2], notices[1].Entry.ID)
	assert.Equal(t, 3, notices[1].NewPosition)
	assert.Equal(t, "Dinner", notices[0].QueueName)
	assert.Equal(t, "Mama Rosa", notices[0].RestaurantName)

	// Calling the head shifts everyone up a rank.
	_, err = svc.CallNext(ctx, 1, 10)
	require.NoError(t, err)

	notices, err = svc.PositionNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, ids[1], notices[0].Entry.ID)
	assert.Equal(t, ids[3], notices[1].Entry.ID)
}

func TestPositionNotificationsSkipAnonymous(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, 1, nil, JoinInput{Name: "Walk-in", GroupSize: 1})
	require.NoError(t, err)
	alice, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)

	// The walk-in holds position 1 but rank 1 among registered
	// parties belongs to Alice.
	notices, err := svc.PositionNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, alice.ID, notices[0].Entry.ID)
	assert.Equal(t, 1, notices[0].NewPosition)
}

func TestDeleteQueueReportsActiveUsers(t *testing.T) {
	svc, queues, entries := newTestService(t)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)
	_, err = svc.JoinQueue(ctx, 1, nil, JoinInput{Name: "Walk-in", GroupSize: 1})
	require.NoError(t, err)
	done, err := svc.JoinQueue(ctx, 1, uptr(101), JoinInput{Name: "Bob", GroupSize: 2})
	require.NoError(t, err)
	_, err = svc.LeaveQueue(ctx, done.ID, 101)
	require.NoError(t, err)

	deleted, err := svc.DeleteQueue(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", deleted.Queue.Name)
	assert.Equal(t, "Mama Rosa", deleted.Restaurant.Name)
	// Only users with still-active entries. Anonymous and cancelled
	// entries are excluded.
	assert.Equal(t, []uint64{100}, deleted.ActiveUserIDs)

	assert.Empty(t, queues.queues)
	assert.Empty(t, entries.entries)
}

func TestDeleteQueueForbiddenForNonOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.DeleteQueue(context.Background(), 1, 999)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestVerifyQueueOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	q, rest, err := svc.VerifyQueueOwnership(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), q.ID)
	assert.Equal(t, uint64(10), rest.OwnerID)

	_, _, err = svc.VerifyQueueOwnership(ctx, 1, 11)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, _, err = svc.VerifyQueueOwnership(ctx, 42, 10)
	assert.ErrorIs(t, err, repository.ErrQueueNotFound)
}

func TestCreateQueueRequiresRestaurant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	q, err := svc.CreateQueue(ctx, 10, "Lunch")
	require.NoError(t, err)
	assert.NotZero(t, q.ID)
	assert.Equal(t, uint64(1), q.RestaurantID)
	assert.Equal(t, "Lunch", q.Name)

	// An owner without a restaurant cannot create queues.
	_, err = svc.CreateQueue(ctx, 999, "Lunch")
	assert.ErrorIs(t, err, repository.ErrRestaurantNotFound)
}

func TestQueuesByOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.JoinQueue(ctx, 1, uptr(100), JoinInput{Name: "Alice", GroupSize: 2})
	require.NoError(t, err)

	details, err := svc.QueuesByOwner(ctx, 10)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Dinner", details[0].Name)
	assert.Len(t, details[0].Entries, 1)

	// Owner without a restaurant gets an empty list, not an error.
	details, err = svc.QueuesByOwner(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, details)
}
