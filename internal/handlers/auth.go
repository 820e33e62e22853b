// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/qr-registration/internal/models"
	"codeberg.org/oliverandrich/qr-registration/internal/services/login"
	"codeberg.org/oliverandrich/qr-registration/internal/services/session"
	"codeberg.org/oliverandrich/qr-registration/internal/verification"
	"github.com/labstack/echo/v4"
)

// LoginService is the part of login.Service the handlers use.
type LoginService interface {
	RequestCode(ctx context.Context, email string) error
	ConfirmCode(ctx context.Context, email, code string) (*models.User, error)
}

// AuthHandlers serves the email code login endpoints.
type AuthHandlers struct {
	login   LoginService
	session *session.Manager
	now     func() time.Time
}

// NewAuth creates the auth handlers.
func NewAuth(loginSvc LoginService, sessMgr *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		login:   loginSvc,
		session: sessMgr,
		now:     time.Now,
	}
}

type requestCodeRequest struct {
	Email string `json:"email" form:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type rateLimitedResponse struct {
	ResetAt time.Time `json:"reset_at"`
	errorResponse
}

type userResponse struct {
	User sessionUser `json:"user"`
}

type sessionUser struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
}

// RequestCode handles POST /auth/code.
func (h *AuthHandlers) RequestCode(c echo.Context) error {
	var req requestCodeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid_request")
	}

	err := h.login.RequestCode(c.Request().Context(), req.Email)

	var rle *verification.RateLimitedError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, messageResponse{Message: t(c, "code_sent")})
	case errors.Is(err, login.ErrInvalidEmail):
		return jsonError(c, http.StatusBadRequest, "invalid_email", "invalid_email")
	case errors.As(err, &rle):
		return h.rateLimited(c, rle.ResetAt)
	case errors.Is(err, login.ErrDeliveryFailed):
		return jsonError(c, http.StatusInternalServerError, "send_failed", "send_failed")
	default:
		slog.ErrorContext(c.Request().Context(), "request code failed", "error", err)
		return jsonError(c, http.StatusInternalServerError, "internal_error", "internal_error")
	}
}

func (h *AuthHandlers) rateLimited(c echo.Context, resetAt time.Time) error {
	retryAfter := int(math.Ceil(resetAt.Sub(h.now()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))

	return c.JSON(http.StatusTooManyRequests, rateLimitedResponse{
		ResetAt: resetAt,
		errorResponse: errorResponse{
			Error: "rate_limited",
			Message: tData(c, "rate_limited", map[string]any{
				"Time": resetAt.UTC().Format("15:04 MST"),
			}),
		},
	})
}

// VerifyCode handles POST /auth/verify and starts a session on success.
func (h *AuthHandlers) VerifyCode(c echo.Context) error {
	var req verifyCodeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid_request")
	}
	if req.Code == "" {
		return jsonError(c, http.StatusBadRequest, "code_required", "code_required")
	}

	user, err := h.login.ConfirmCode(c.Request().Context(), req.Email, req.Code)
	switch {
	case err == nil:
	case errors.Is(err, login.ErrInvalidEmail):
		return jsonError(c, http.StatusBadRequest, "invalid_email", "invalid_email")
	case errors.Is(err, verification.ErrNotFound):
		return jsonError(c, http.StatusBadRequest, "code_not_found", "code_not_found")
	case errors.Is(err, verification.ErrCodeMismatch):
		return jsonError(c, http.StatusBadRequest, "invalid_code", "code_invalid")
	case errors.Is(err, verification.ErrAttemptsExceeded):
		return jsonError(c, http.StatusBadRequest, "attempts_exceeded", "attempts_exceeded")
	default:
		slog.ErrorContext(c.Request().Context(), "verify code failed", "error", err)
		return jsonError(c, http.StatusInternalServerError, "internal_error", "internal_error")
	}

	cookie, err := h.session.Create(user.ID, user.Email)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "creating session failed", "error", err)
		return jsonError(c, http.StatusInternalServerError, "internal_error", "internal_error")
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, userResponse{User: sessionUser{ID: user.ID, Email: user.Email}})
}

// Me handles GET /auth/me.
func (h *AuthHandlers) Me(c echo.Context) error {
	data, err := h.session.Parse(c.Request())
	if err != nil || data == nil {
		return jsonError(c, http.StatusUnauthorized, "not_authenticated", "not_authenticated")
	}
	return c.JSON(http.StatusOK, userResponse{User: sessionUser{ID: data.UserID, Email: data.Email}})
}

// Logout handles POST /auth/logout.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.session.Clear())
	return c.NoContent(http.StatusNoContent)
}
