package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// UserRepo resolves the email address a rendered notification is
// addressed to. Account management itself lives outside SentryCore; this
// is a read-only view onto the shared users table.
type UserRepo struct{ db *sql.DB }

// NewUserRepo builds a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Email looks up a user's notification address.
func (r *UserRepo) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		return "", fmt.Errorf("user email %s: %w", userID, err)
	}
	return email, nil
}
