package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/db"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, user NewUser) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const userColumns = `id, username, email, password_hash, role, first_name, last_name, is_active, created_at, updated_at`

const findByIdentifierSQL = `SELECT ` + userColumns + ` FROM users
WHERE lower(username) = lower($1) OR lower(email) = lower($1)
ORDER BY id LIMIT 1`

const findByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

const createUserSQL = `INSERT INTO users (username, email, password_hash, role, first_name, last_name, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
RETURNING ` + userColumns

// FindByIdentifier fetches a user by username or email.
func (r *PGRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return r.scanOne(r.db.QueryRow(ctx, findByIdentifierSQL, identifier))
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.scanOne(r.db.QueryRow(ctx, findByIDSQL, id))
}

// CreateUser inserts a new active account.
func (r *PGRepository) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	row := r.db.QueryRow(ctx, createUserSQL, u.Username, u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName)
	user, err := r.scanOne(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("auth: create user %s: %w", u.Username, shared.ErrDuplicate)
		}
		return nil, err
	}
	return user, nil
}

func (r *PGRepository) scanOne(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
