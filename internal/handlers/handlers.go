// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/qr-registration/internal/verification"
	"github.com/labstack/echo/v4"
)

// Handlers contains the public, unauthenticated HTTP handlers.
type Handlers struct {
	store *verification.Store
}

// New creates a new Handlers instance.
func New(store *verification.Store) *Handlers {
	return &Handlers{store: store}
}

type healthResponse struct {
	Status string `json:"status"`
	verification.Stats
}

// Health returns the health status and in-memory store sizes.
func (h *Handlers) Health(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if h.store != nil {
		resp.Stats = h.store.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}
