// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package login implements passwordless sign-in with emailed one-time codes.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"codeberg.org/oliverandrich/qr-registration/internal/config"
	"codeberg.org/oliverandrich/qr-registration/internal/models"
	"codeberg.org/oliverandrich/qr-registration/internal/verification"
)

var (
	// ErrInvalidEmail is returned for addresses that do not parse.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrDeliveryFailed is returned when the code was issued but not sent.
	ErrDeliveryFailed = errors.New("failed to send verification email")
)

// Sender delivers a code to an address.
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// UserStore persists users who completed verification.
type UserStore interface {
	GetOrCreateUserByEmail(ctx context.Context, email string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, userID int64, at time.Time) error
}

// Service ties the verification store to delivery and user records.
type Service struct {
	store    *verification.Store
	sender   Sender
	users    UserStore
	generate func(length int) (string, error)
	now      func() time.Time
	cfg      *config.VerificationConfig
}

// NewService creates a login service.
func NewService(store *verification.Store, sender Sender, users UserStore, cfg *config.VerificationConfig) *Service {
	return &Service{
		store:    store,
		sender:   sender,
		users:    users,
		generate: GenerateCode,
		now:      time.Now,
		cfg:      cfg,
	}
}

// NormalizeEmail trims and lowercases an address and checks its syntax.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// RequestCode issues a new code for email and sends it.
//
// The rate limit is charged once per call. A *verification.RateLimitedError
// is returned when the window is used up. If delivery fails the code stays
// valid and ErrDeliveryFailed is returned.
func (s *Service) RequestCode(ctx context.Context, rawEmail string) error {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	if d := s.store.CheckRateLimit(email); !d.Allowed {
		slog.InfoContext(ctx, "verification rate limited", "email", email, "reset_at", d.ResetAt)
		return &verification.RateLimitedError{ResetAt: d.ResetAt}
	}

	code, err := s.generate(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}

	if err := s.store.Issue(email, code); err != nil {
		return fmt.Errorf("issuing code: %w", err)
	}

	// TODO: revoke undelivered codes if product rejects the fail-open policy.
	if err := s.sender.SendVerificationCode(ctx, email, code, s.store.Options().CodeTTL); err != nil {
		slog.ErrorContext(ctx, "verification email failed", "email", email, "error", err)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	slog.InfoContext(ctx, "verification code sent", "email", email)
	return nil
}

// ConfirmCode checks code for email and returns the now verified user.
// Store errors (verification.ErrNotFound, ErrCodeMismatch, ErrAttemptsExceeded)
// are returned unwrapped.
func (s *Service) ConfirmCode(ctx context.Context, rawEmail, code string) (*models.User, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	if err := s.store.Verify(email, strings.TrimSpace(code)); err != nil {
		slog.InfoContext(ctx, "verification failed", "email", email, "reason", err.Error())
		return nil, err
	}

	user, err := s.users.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	now := s.now()
	if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("marking email verified: %w", err)
	}
	user.EmailVerified = true
	if !user.EmailVerifiedAt.Valid {
		user.EmailVerifiedAt.Time, user.EmailVerifiedAt.Valid = now, true
	}
	user.LastLoginAt.Time, user.LastLoginAt.Valid = now, true

	slog.InfoContext(ctx, "email verified", "email", email, "user_id", user.ID)
	return user, nil
}
