// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound covers never issued, expired and already consumed codes alike.
	ErrNotFound = errors.New("no code found or expired")
	// ErrAttemptsExceeded is returned once a code has been tried too often. The code is gone.
	ErrAttemptsExceeded = errors.New("too many attempts, request a new code")
	// ErrCodeMismatch is returned for a wrong code. The caller may retry.
	ErrCodeMismatch = errors.New("invalid code")
	// ErrRateLimited matches every *RateLimitedError.
	ErrRateLimited = errors.New("too many verification requests")
	// ErrInvalidIdentity is returned for an empty identity.
	ErrInvalidIdentity = errors.New("identity is required")
)

// RateLimitedError carries the end of the current window.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, try again after %s", ErrRateLimited, e.ResetAt.Format(time.RFC3339))
}

// Is reports ErrRateLimited as a match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
