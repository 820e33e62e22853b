// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// jsonError writes a localized error body. code is a stable machine-readable key.
func jsonError(c echo.Context, status int, code, messageID string) error {
	return c.JSON(status, errorResponse{
		Error:   code,
		Message: t(c, messageID),
	})
}

// NotFound is the fallback for unknown routes.
func NotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, errorResponse{
		Error:   "not_found",
		Message: http.StatusText(http.StatusNotFound),
	})
}
