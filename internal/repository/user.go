// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/qr-registration/internal/models"
)

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// CreateUserWithEmail creates an unverified user.
func (r *Repository) CreateUserWithEmail(ctx context.Context, email string) (*models.User, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (email) VALUES (?)`, email)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetUserByID(ctx, id)
}

// GetOrCreateUserByEmail returns the user for email, creating it on first use.
func (r *Repository) GetOrCreateUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email) VALUES (?) ON CONFLICT (email) DO NOTHING`, email); err != nil {
		return nil, err
	}
	return r.GetUserByEmail(ctx, email)
}

// MarkEmailVerified flags the user's email as verified and records the login time.
func (r *Repository) MarkEmailVerified(ctx context.Context, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email_verified = 1,
		     email_verified_at = COALESCE(email_verified_at, ?),
		     last_login_at = ?,
		     updated_at = ?
		 WHERE id = ?`,
		at, at, at, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}
