// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package login

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/qr-registration/internal/config"
	"codeberg.org/oliverandrich/qr-registration/internal/repository"
	"codeberg.org/oliverandrich/qr-registration/internal/testutil"
	"codeberg.org/oliverandrich/qr-registration/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to   string
	code string
	ttl  time.Duration
}

type fakeSender struct {
	err  error
	sent []sentMessage
	mu   sync.Mutex
}

func (f *fakeSender) SendVerificationCode(_ context.Context, to, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, code: code, ttl: ttl})
	return f.err
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func testVerificationConfig() *config.VerificationConfig {
	return &config.VerificationConfig{
		CodeLength:      6,
		CodeTTL:         15 * time.Minute,
		MaxAttempts:     5,
		RateLimitWindow: time.Hour,
		RateLimitMax:    5,
		SweepInterval:   5 * time.Minute,
	}
}

type fixture struct {
	svc    *Service
	store  *verification.Store
	sender *fakeSender
	repo   *repository.Repository
	clock  *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock()
	store := verification.New(verification.DefaultOptions(), verification.WithClock(clock.Now))
	sender := &fakeSender{}
	svc := NewService(store, sender, repo, testVerificationConfig())
	svc.now = clock.Now
	return &fixture{svc: svc, store: store, sender: sender, repo: repo, clock: clock}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"user@example.com", "user@example.com", false},
		{"  User@Example.COM ", "user@example.com", false},
		{"", "", true},
		{"not-an-email", "", true},
		{"Name <user@example.com>", "", true},
		{"user@", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEmail)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestCode(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RequestCode(context.Background(), " A@Example.com")
	require.NoError(t, err)

	msg := f.sender.last(t)
	assert.Equal(t, "a@example.com", msg.to)
	assert.Len(t, msg.code, 6)
	assert.Equal(t, 15*time.Minute, msg.ttl)

	rec, err := f.store.ActiveCode("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, msg.code, rec.Code)
}

func TestRequestCode_InvalidEmail(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RequestCode(context.Background(), "nope")

	require.ErrorIs(t, err, ErrInvalidEmail)
	assert.Empty(t, f.sender.sent)
	assert.Zero(t, f.store.Stats().Counters, "invalid input does not consume the budget")
}

func TestRequestCode_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))
	}

	err := f.svc.RequestCode(ctx, "a@example.com")

	require.ErrorIs(t, err, verification.ErrRateLimited)
	var rle *verification.RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, start.Add(time.Hour), rle.ResetAt)
	assert.Len(t, f.sender.sent, 5, "denied request sends nothing")
}

func TestRequestCode_ChargesRateLimitOnce(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.RequestCode(context.Background(), "a@example.com"))

	c, ok := f.store.Counter("a@example.com")
	require.True(t, ok)
	assert.Equal(t, 1, c.Count)
}

func TestRequestCode_DeliveryFailureKeepsCode(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")

	err := f.svc.RequestCode(context.Background(), "a@example.com")

	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "smtp down")

	code := f.sender.last(t).code
	_, err = f.svc.ConfirmCode(context.Background(), "a@example.com", code)
	assert.NoError(t, err, "undelivered code remains usable")
}

func TestRequestCode_GeneratorError(t *testing.T) {
	f := newFixture(t)
	f.svc.generate = func(int) (string, error) { return "", errors.New("no entropy") }

	err := f.svc.RequestCode(context.Background(), "a@example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "generating code")
	assert.Zero(t, f.store.Stats().PendingCodes)
}

func TestRequestCode_ReissueInvalidatesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	f.svc.generate = func(int) (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))
	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))

	_, err := f.svc.ConfirmCode(ctx, "a@example.com", "111111")
	require.ErrorIs(t, err, verification.ErrCodeMismatch)

	_, err = f.svc.ConfirmCode(ctx, "a@example.com", "222222")
	assert.NoError(t, err)
}

func TestConfirmCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))
	code := f.sender.last(t).code

	user, err := f.svc.ConfirmCode(ctx, "A@example.com", " "+code+" ")

	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "a@example.com", user.Email)
	assert.True(t, user.EmailVerified)

	stored, err := f.repo.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
}

func TestConfirmCode_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))
	code := f.sender.last(t).code

	_, err := f.svc.ConfirmCode(ctx, "a@example.com", code)
	require.NoError(t, err)

	_, err = f.svc.ConfirmCode(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, verification.ErrNotFound)
}

func TestConfirmCode_ExistingUserKeepsID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := testutil.NewTestUser(t, f.repo, "a@example.com")

	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))
	user, err := f.svc.ConfirmCode(ctx, "a@example.com", f.sender.last(t).code)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
}

func TestConfirmCode_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.generate = func(int) (string, error) { return "123456", nil }

	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))

	for i := 0; i < 5; i++ {
		_, err := f.svc.ConfirmCode(ctx, "a@example.com", "000000")
		require.ErrorIs(t, err, verification.ErrCodeMismatch)
	}

	_, err := f.svc.ConfirmCode(ctx, "a@example.com", "123456")
	require.ErrorIs(t, err, verification.ErrAttemptsExceeded)

	_, err = f.store.ActiveCode("a@example.com")
	assert.ErrorIs(t, err, verification.ErrNotFound)

	count, err := f.repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "no user is created without a successful verification")
}

func TestConfirmCode_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RequestCode(ctx, "a@example.com"))
	code := f.sender.last(t).code

	f.clock.Advance(16 * time.Minute)
	_, err := f.svc.ConfirmCode(ctx, "a@example.com", code)

	assert.ErrorIs(t, err, verification.ErrNotFound)
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)

	require.NoError(t, err)
	assert.Len(t, code, 8)
	for _, c := range code {
		assert.True(t, c >= '0' && c <= '9', "unexpected character %q", c)
	}
}

func TestGenerateCode_DefaultLength(t *testing.T) {
	code, err := GenerateCode(0)

	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}

func TestGenerateCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		code, err := GenerateCode(12)
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code generated")
		seen[code] = true
	}
}
