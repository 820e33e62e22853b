// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"database/sql"
	"time"
)

// User is an account identified by a verified email address.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID              int64        `db:"id" json:"id"`
	Email           string       `db:"email" json:"email"`
	EmailVerified   bool         `db:"email_verified" json:"email_verified"`
	EmailVerifiedAt sql.NullTime `db:"email_verified_at" json:"-"`
	LastLoginAt     sql.NullTime `db:"last_login_at" json:"-"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}
