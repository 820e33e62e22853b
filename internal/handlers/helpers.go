// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"codeberg.org/oliverandrich/qr-registration/internal/i18n"
	"github.com/labstack/echo/v4"
)

// t translates messageID for the request's locale.
func t(c echo.Context, messageID string) string {
	return i18n.T(c.Request().Context(), messageID)
}

func tData(c echo.Context, messageID string, data map[string]any) string {
	return i18n.TData(c.Request().Context(), messageID, data)
}
