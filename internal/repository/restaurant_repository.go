// This file defines repository methods for restaurants: CRUD, owner
// lookup and the public browse/search queries that decorate each
// restaurant with its active queues and live waiting counts.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/queuekill/queuekill/internal/model"
)

// ErrRestaurantNotFound is returned when a restaurant cannot be found.
var ErrRestaurantNotFound = errors.New("restaurant not found")

// RestaurantRepo encapsulates all database queries related to
// restaurants.
type RestaurantRepo struct{ DB *sql.DB }

func NewRestaurantRepo(db *sql.DB) *RestaurantRepo { return &RestaurantRepo{DB: db} }

const restaurantColumns = "id, owner_id, name, address, type, description, long_description, menu_text, created_at, updated_at"

// CreateTx inserts a restaurant within an existing transaction and
// populates the generated ID. Used by owner registration, which creates
// the user and the restaurant atomically.
func (r *RestaurantRepo) CreateTx(ctx context.Context, tx *sql.Tx, rest *model.Restaurant) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO restaurants (owner_id, name, address) VALUES (?,?,?)",
		rest.OwnerID, rest.Name, rest.Address)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rest.ID = uint64(id)
	return nil
}

// GetByID fetches a restaurant by id.
func (r *RestaurantRepo) GetByID(ctx context.Context, id uint64) (model.Restaurant, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+restaurantColumns+" FROM restaurants WHERE id=? LIMIT 1", id)
	return scanRestaurant(row)
}

// GetByOwner fetches the restaurant operated by the given owner. The
// owner_id column is unique, so at most one row matches.
func (r *RestaurantRepo) GetByOwner(ctx context.Context, ownerID uint64) (model.Restaurant, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+restaurantColumns+" FROM restaurants WHERE owner_id=? LIMIT 1", ownerID)
	return scanRestaurant(row)
}

// RestaurantUpdate carries the patchable profile fields. Nil pointers
// leave the column untouched.
type RestaurantUpdate struct {
	Name            *string
	Address         *string
	Type            *string
	Description     *string
	LongDescription *string
	MenuText        *string
}

// Update applies the non-nil fields of upd to the restaurant row and
// returns the updated record.
func (r *RestaurantRepo) Update(ctx context.Context, id uint64, upd RestaurantUpdate) (model.Restaurant, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+"=?")
			args = append(args, *v)
		}
	}
	add("name", upd.Name)
	add("address", upd.Address)
	add("type", upd.Type)
	add("description", upd.Description)
	add("long_description", upd.LongDescription)
	add("menu_text", upd.MenuText)
	if len(sets) > 0 {
		args = append(args, id)
		q := "UPDATE restaurants SET " + strings.Join(sets, ", ") + " WHERE id=?"
		if _, err := r.DB.ExecContext(ctx, q, args...); err != nil {
			return model.Restaurant{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// QueueSummary is the trimmed queue view attached to browse results:
// just enough for a customer to pick a queue and gauge the wait.
type QueueSummary struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	IsActive     bool   `json:"isActive"`
	WaitingCount int    `json:"waitingCount"`
}

// RestaurantWithQueues decorates a restaurant with its active queues
// and their live waiting counts for the public browse endpoints.
type RestaurantWithQueues struct {
	model.Restaurant
	Queues []QueueSummary `json:"queues"`
}

// GetDetail returns one restaurant decorated with its active queues,
// as served by the public detail endpoint.
func (r *RestaurantRepo) GetDetail(ctx context.Context, id uint64) (RestaurantWithQueues, error) {
	rest, err := r.GetByID(ctx, id)
	if err != nil {
		return RestaurantWithQueues{}, err
	}
	qs, err := r.activeQueueSummaries(ctx, id)
	if err != nil {
		return RestaurantWithQueues{}, err
	}
	return RestaurantWithQueues{Restaurant: rest, Queues: qs}, nil
}

// ListAll returns up to limit restaurants, newest first, each with its
// active queues and waiting counts.
func (r *RestaurantRepo) ListAll(ctx context.Context, limit int) ([]RestaurantWithQueues, error) {
	return r.browse(ctx,
		"SELECT "+restaurantColumns+" FROM restaurants ORDER BY created_at DESC LIMIT ?",
		limit)
}

// Search returns restaurants whose name or address matches the query,
// ordered by name.
func (r *RestaurantRepo) Search(ctx context.Context, query string, limit int) ([]RestaurantWithQueues, error) {
	like := "%" + query + "%"
	return r.browse(ctx,
		"SELECT "+restaurantColumns+" FROM restaurants WHERE name LIKE ? OR address LIKE ? ORDER BY name ASC LIMIT ?",
		like, like, limit)
}

func (r *RestaurantRepo) browse(ctx context.Context, q string, args ...any) ([]RestaurantWithQueues, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RestaurantWithQueues{}
	for rows.Next() {
		rest, err := scanRestaurantRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, RestaurantWithQueues{Restaurant: rest})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		qs, err := r.activeQueueSummaries(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Queues = qs
	}
	return out, nil
}

// activeQueueSummaries lists a restaurant's active queues with a
// correlated count of WAITING entries.
func (r *RestaurantRepo) activeQueueSummaries(ctx context.Context, restaurantID uint64) ([]QueueSummary, error) {
	const q = `SELECT q.id, q.name, q.is_active,
		(SELECT COUNT(*) FROM queue_entries e WHERE e.queue_id = q.id AND e.status = 'WAITING')
		FROM queues q WHERE q.restaurant_id = ? AND q.is_active = 1 ORDER BY q.created_at ASC`
	rows, err := r.DB.QueryContext(ctx, q, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []QueueSummary{}
	for rows.Next() {
		var s QueueSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.IsActive, &s.WaitingCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRestaurant(row *sql.Row) (model.Restaurant, error) {
	rest, err := scanRestaurantRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Restaurant{}, ErrRestaurantNotFound
		}
		return model.Restaurant{}, err
	}
	return rest, nil
}

func scanRestaurantRows(row rowScanner) (model.Restaurant, error) {
	var rest model.Restaurant
	var typ, desc, longDesc, menu sql.NullString
	err := row.Scan(&rest.ID, &rest.OwnerID, &rest.Name, &rest.Address,
		&typ, &desc, &longDesc, &menu, &rest.CreatedAt, &rest.UpdatedAt)
	if err != nil {
		return model.Restaurant{}, err
	}
	rest.Type = nullStr(typ)
	rest.Description = nullStr(desc)
	rest.LongDescription = nullStr(longDesc)
	rest.MenuText = nullStr(menu)
	return rest, nil
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
