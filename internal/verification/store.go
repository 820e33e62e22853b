// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification keeps short-lived one-time codes and per-identity
// issuance rate limits in process memory.
package verification

import (
	"crypto/subtle"
	"sync"
	"time"
)

const (
	// DefaultCodeTTL is how long an issued code stays valid.
	DefaultCodeTTL = 15 * time.Minute
	// DefaultMaxAttempts is the number of verification calls allowed per code.
	DefaultMaxAttempts = 5
	// DefaultRateLimitWindow is the length of one issuance window.
	DefaultRateLimitWindow = time.Hour
	// DefaultRateLimitMax is the number of issuances allowed per window.
	DefaultRateLimitMax = 5
	// DefaultSweepInterval is how often Run removes expired entries.
	DefaultSweepInterval = 5 * time.Minute
)

// Record is a pending verification code for one identity.
type Record struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Identity  string
	Code      string
	Attempts  int
	Verified  bool
}

// Counter tracks issuance requests for one identity within a window.
type Counter struct {
	ResetAt  time.Time
	Identity string
	Count    int
}

// Decision is the outcome of CheckRateLimit. ResetAt is only set on denial.
type Decision struct {
	ResetAt time.Time
	Allowed bool
}

// Stats reports the number of live entries.
type Stats struct {
	PendingCodes int `json:"pending_codes"`
	Counters     int `json:"rate_limit_counters"`
}

// Options configures TTLs and limits. Zero values fall back to the defaults.
type Options struct {
	CodeTTL         time.Duration
	RateLimitWindow time.Duration
	SweepInterval   time.Duration
	MaxAttempts     int
	RateLimitMax    int
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{
		CodeTTL:         DefaultCodeTTL,
		RateLimitWindow: DefaultRateLimitWindow,
		SweepInterval:   DefaultSweepInterval,
		MaxAttempts:     DefaultMaxAttempts,
		RateLimitMax:    DefaultRateLimitMax,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CodeTTL <= 0 {
		o.CodeTTL = d.CodeTTL
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = d.RateLimitWindow
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.RateLimitMax <= 0 {
		o.RateLimitMax = d.RateLimitMax
	}
	return o
}

// Clock returns the current time.
type Clock func() time.Time

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now Clock) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store holds verification records and rate-limit counters.
// It is safe for concurrent use.
type Store struct {
	now      Clock
	records  map[string]*Record
	counters map[string]*Counter
	opts     Options
	mu       sync.Mutex
}

// New creates an empty Store.
func New(opts Options, optFns ...Option) *Store {
	s := &Store{
		now:      time.Now,
		records:  make(map[string]*Record),
		counters: make(map[string]*Counter),
		opts:     opts.withDefaults(),
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Options returns the effective configuration.
func (s *Store) Options() Options {
	return s.opts
}

// Issue stores code for identity, replacing any pending code.
func (s *Store) Issue(identity, code string) error {
	if identity == "" {
		return ErrInvalidIdentity
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[identity] = &Record{
		Identity:  identity,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.CodeTTL),
	}
	return nil
}

// ActiveCode returns a copy of the pending record for identity.
// Expired records are deleted and reported as ErrNotFound.
func (s *Store) ActiveCode(identity string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.activeLocked(identity, s.now())
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// activeLocked looks up identity with lazy expiry. Caller holds s.mu.
func (s *Store) activeLocked(identity string, now time.Time) (*Record, bool) {
	rec, ok := s.records[identity]
	if !ok {
		return nil, false
	}
	if now.After(rec.ExpiresAt) {
		delete(s.records, identity)
		return nil, false
	}
	return rec, true
}

// Verify checks code against the pending record for identity.
//
// Every call counts as an attempt. Once the attempt count passes MaxAttempts
// the record is deleted and ErrAttemptsExceeded is returned, even for the
// right code. A wrong code returns ErrCodeMismatch and keeps the record.
// A match deletes the record, so each code verifies at most once.
func (s *Store) Verify(identity, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.activeLocked(identity, s.now())
	if !ok {
		return ErrNotFound
	}

	rec.Attempts++
	if rec.Attempts > s.opts.MaxAttempts {
		delete(s.records, identity)
		return ErrAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return ErrCodeMismatch
	}

	rec.Verified = true
	delete(s.records, identity)
	return nil
}

// CheckRateLimit counts one issuance request for identity.
// Call it exactly once per issuance attempt. Denials leave the counter untouched.
func (s *Store) CheckRateLimit(identity string) Decision {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[identity]
	if !ok || now.After(c.ResetAt) {
		s.counters[identity] = &Counter{
			Identity: identity,
			Count:    1,
			ResetAt:  now.Add(s.opts.RateLimitWindow),
		}
		return Decision{Allowed: true}
	}

	if c.Count < s.opts.RateLimitMax {
		c.Count++
		return Decision{Allowed: true}
	}

	return Decision{Allowed: false, ResetAt: c.ResetAt}
}

// Counter returns a copy of the live counter for identity, if any.
func (s *Store) Counter(identity string) (Counter, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[identity]
	if !ok || now.After(c.ResetAt) {
		return Counter{}, false
	}
	return *c, true
}

// SweepExpired deletes expired records and counters and reports how many of each went.
func (s *Store) SweepExpired() (codes, counters int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if now.After(rec.ExpiresAt) {
			delete(s.records, id)
			codes++
		}
	}
	for id, c := range s.counters {
		if now.After(c.ResetAt) {
			delete(s.counters, id)
			counters++
		}
	}
	return codes, counters
}

// Stats returns entry counts, including entries not yet swept.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		PendingCodes: len(s.records),
		Counters:     len(s.counters),
	}
}
