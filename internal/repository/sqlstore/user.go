package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/recipebox/internal/apperror"
	"github.com/sakif/recipebox/internal/model"
)

// GetUserByEmail looks up an account by its exact email.
//
// Emails are stored the way the user typed them at signup; the service layer
// trims them before they get here.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`),
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", classify(err, "Database connection error"))
	}

	return &user, nil
}

// GetUserByID looks up an account by primary key.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`),
		id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting user %d: %w", id, classify(err, "Database connection error"))
	}

	return &user, nil
}

// CreateUser inserts a new account and fills in user.ID and user.CreatedAt.
//
// The UNIQUE constraint on email is the real guard against duplicates: two
// concurrent signups can both pass the service's "email taken?" check, but
// only one INSERT wins. The loser gets apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.CreatedAt = time.Now().UTC()

	err := db.conn.QueryRowContext(ctx,
		db.rebind(`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`),
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	).Scan(&user.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlstore: inserting user: %w", classify(err, "Database connection error"))
	}

	return nil
}
