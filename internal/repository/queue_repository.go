package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/queuekill/queuekill/internal/model"
)

// ErrQueueNotFound is returned when a queue cannot be found in the DB.
var ErrQueueNotFound = errors.New("queue not found")

// QueueRepo encapsulates all database queries related to queues.
type QueueRepo struct{ DB *sql.DB }

func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{DB: db} }

const queueColumns = "id, restaurant_id, name, is_active, created_at"

// Create inserts a new queue. On success the ID, IsActive default and
// CreatedAt are populated from the stored row.
func (r *QueueRepo) Create(ctx context.Context, q *model.Queue) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO queues (restaurant_id, name) VALUES (?,?)",
		q.RestaurantID, q.Name)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	q.ID = uint64(id)
	// Follow-up SELECT to populate defaults (is_active, created_at).
	return r.DB.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM queues WHERE id=?", q.ID).
		Scan(&q.ID, &q.RestaurantID, &q.Name, &q.IsActive, &q.CreatedAt)
}

// GetByID fetches a queue by id.
func (r *QueueRepo) GetByID(ctx context.Context, id uint64) (model.Queue, error) {
	var q model.Queue
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM queues WHERE id=? LIMIT 1", id).
		Scan(&q.ID, &q.RestaurantID, &q.Name, &q.IsActive, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Queue{}, ErrQueueNotFound
		}
		return model.Queue{}, err
	}
	return q, nil
}

// ListByRestaurant returns a restaurant's queues, newest first.
func (r *QueueRepo) ListByRestaurant(ctx context.Context, restaurantID uint64) ([]model.Queue, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+queueColumns+" FROM queues WHERE restaurant_id=? ORDER BY created_at DESC", restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Queue{}
	for rows.Next() {
		var q model.Queue
		if err := rows.Scan(&q.ID, &q.RestaurantID, &q.Name, &q.IsActive, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// DeleteCascade removes a queue and all of its entries in one
// transaction and returns the distinct user IDs that still held an
// active (WAITING or CALLED) entry, so callers can notify them. The
// transaction also shields the multi-step delete from a concurrent
// join.
func (r *QueueRepo) DeleteCascade(ctx context.Context, queueID uint64) ([]uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM queue_entries
		 WHERE queue_id=? AND status IN ('WAITING','CALLED') AND user_id IS NOT NULL`, queueID)
	if err != nil {
		return nil, err
	}
	userIDs := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Entries first because of the foreign key, then the queue row.
	if _, err := tx.ExecContext(ctx, "DELETE FROM queue_entries WHERE queue_id=?", queueID); err != nil {
		return nil, fmt.Errorf("delete entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM queues WHERE id=?", queueID)
	if err != nil {
		return nil, fmt.Errorf("delete queue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrQueueNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return userIDs, nil
}
