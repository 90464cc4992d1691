// This file defines repository methods for queue entries: the ticketed
// join insert, status updates and the ordered reads that drive both the
// queue pages and the position notifications.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/queuekill/queuekill/internal/model"
)

// ErrEntryNotFound is returned when a queue entry cannot be found.
var ErrEntryNotFound = errors.New("queue entry not found")

// EntryRepo encapsulates all database queries related to queue entries.
type EntryRepo struct{ DB *sql.DB }

func NewEntryRepo(db *sql.DB) *EntryRepo { return &EntryRepo{DB: db} }

const entryColumns = "id, queue_id, user_id, name, phone, group_size, position, status, called_at, completed_at, cancelled_at, created_at"

// InsertWithNextPosition assigns the entry the queue's next ticket
// number (max existing position + 1, or 1 when empty) and inserts it.
// The read-max-then-insert sequence runs in one transaction with the
// queue row locked, so two concurrent joins cannot mint the same
// position.
func (r *EntryRepo) InsertWithNextPosition(ctx context.Context, e *model.QueueEntry) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM queues WHERE id=? FOR UPDATE", e.QueueID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQueueNotFound
		}
		return err
	}

	var maxPos int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position),0) FROM queue_entries WHERE queue_id=?", e.QueueID).Scan(&maxPos); err != nil {
		return err
	}
	e.Position = maxPos + 1
	e.Status = model.StatusWaiting

	res, err := tx.ExecContext(ctx,
		"INSERT INTO queue_entries (queue_id, user_id, name, phone, group_size, position, status) VALUES (?,?,?,?,?,?,?)",
		e.QueueID, e.UserID, e.Name, e.Phone, e.GroupSize, e.Position, string(e.Status))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	if err := tx.QueryRowContext(ctx,
		"SELECT created_at FROM queue_entries WHERE id=?", e.ID).Scan(&e.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID fetches an entry by id.
func (r *EntryRepo) GetByID(ctx context.Context, id uint64) (model.QueueEntry, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM queue_entries WHERE id=? LIMIT 1", id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.QueueEntry{}, ErrEntryNotFound
		}
		return model.QueueEntry{}, err
	}
	return e, nil
}

// ActiveByQueueAndUser returns the user's WAITING or CALLED entry in
// the queue, or nil when the user holds none.
func (r *EntryRepo) ActiveByQueueAndUser(ctx context.Context, queueID, userID uint64) (*model.QueueEntry, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+entryColumns+` FROM queue_entries
		 WHERE queue_id=? AND user_id=? AND status IN ('WAITING','CALLED') LIMIT 1`,
		queueID, userID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// FirstWaiting returns the WAITING entry with the smallest position in
// the queue, or nil when nobody is waiting.
func (r *EntryRepo) FirstWaiting(ctx context.Context, queueID uint64) (*model.QueueEntry, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+entryColumns+` FROM queue_entries
		 WHERE queue_id=? AND status='WAITING' ORDER BY position ASC LIMIT 1`, queueID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// UpdateStatus moves an entry to status and stamps the matching
// timestamp column. Transition legality is validated by the service
// before this is called.
func (r *EntryRepo) UpdateStatus(ctx context.Context, id uint64, status model.EntryStatus, at time.Time) error {
	var q string
	switch status {
	case model.StatusCalled:
		q = "UPDATE queue_entries SET status=?, called_at=? WHERE id=?"
	case model.StatusCompleted:
		q = "UPDATE queue_entries SET status=?, completed_at=? WHERE id=?"
	case model.StatusCancelled:
		q = "UPDATE queue_entries SET status=?, cancelled_at=? WHERE id=?"
	default:
		return ErrConflict
	}
	res, err := r.DB.ExecContext(ctx, q, string(status), at, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ListByQueue returns every entry in the queue ordered by position
// ascending, terminal ones included.
func (r *EntryRepo) ListByQueue(ctx context.Context, queueID uint64) ([]model.QueueEntry, error) {
	return r.list(ctx,
		"SELECT "+entryColumns+" FROM queue_entries WHERE queue_id=? ORDER BY position ASC", queueID)
}

// WaitingWithUser returns the queue's WAITING entries that belong to an
// authenticated user, ordered by position ascending. Used to pick the
// rank-1 and rank-3 parties for position notifications.
func (r *EntryRepo) WaitingWithUser(ctx context.Context, queueID uint64) ([]model.QueueEntry, error) {
	return r.list(ctx,
		"SELECT "+entryColumns+` FROM queue_entries
		 WHERE queue_id=? AND status='WAITING' AND user_id IS NOT NULL ORDER BY position ASC`, queueID)
}

// ListActiveByUser returns a user's WAITING or CALLED entries across
// all queues, newest first.
func (r *EntryRepo) ListActiveByUser(ctx context.Context, userID uint64) ([]model.QueueEntry, error) {
	return r.list(ctx,
		"SELECT "+entryColumns+` FROM queue_entries
		 WHERE user_id=? AND status IN ('WAITING','CALLED') ORDER BY created_at DESC`, userID)
}

// CountWaitingBefore counts the WAITING entries in the queue with a
// position strictly smaller than position: the live rank-ahead number.
func (r *EntryRepo) CountWaitingBefore(ctx context.Context, queueID uint64, position int) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM queue_entries WHERE queue_id=? AND status='WAITING' AND position < ?",
		queueID, position).Scan(&n)
	return n, err
}

func (r *EntryRepo) list(ctx context.Context, q string, args ...any) ([]model.QueueEntry, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.QueueEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (model.QueueEntry, error) {
	var e model.QueueEntry
	var userID sql.NullInt64
	var phone sql.NullString
	var status string
	var calledAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(&e.ID, &e.QueueID, &userID, &e.Name, &phone, &e.GroupSize,
		&e.Position, &status, &calledAt, &completedAt, &cancelledAt, &e.CreatedAt)
	if err != nil {
		return model.QueueEntry{}, err
	}
	if userID.Valid {
		id := uint64(userID.Int64)
		e.UserID = &id
	}
	e.Phone = nullStr(phone)
	e.Status = model.EntryStatus(status)
	e.CalledAt = nullTime(calledAt)
	e.CompletedAt = nullTime(completedAt)
	e.CancelledAt = nullTime(cancelledAt)
	return e, nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
