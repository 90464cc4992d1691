package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/queuekill/queuekill/internal/model"
	"github.com/queuekill/queuekill/internal/utils"
)

// ErrEmailExists is returned when registering with an address that is
// already taken.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when a user cannot be found in the DB.
var ErrUserNotFound = errors.New("user not found")

// UserRepo encapsulates all database queries related to users.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, password_hash, name, phone, role, created_at, updated_at"

// Create hashes the password and inserts a user, returning its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, name string, phone *string, role model.Role, cost int) (uint64, error) {
	return createUser(ctx, r.DB, email, password, name, phone, role, cost)
}

// CreateTx is Create within the scope of an existing transaction. The
// caller must commit or rollback.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, email, password, name string, phone *string, role model.Role, cost int) (uint64, error) {
	return createUser(ctx, tx, email, password, name, phone, role, cost)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createUser(ctx context.Context, db execer, email, password, name string, phone *string, role model.Role, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, phone, role) VALUES (?,?,?,?,?)",
		email, hash, name, phone, string(role))
	if err != nil {
		// MySQL duplicate key on the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var phone sql.NullString
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &phone, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, err
	}
	if phone.Valid {
		p := phone.String
		u.Phone = &p
	}
	u.Role = model.Role(role)
	return u, nil
}
