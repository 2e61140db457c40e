package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HandleCleanup runs the global expired-share sweep on demand
func (h *Handler) HandleCleanup(c echo.Context) error {
	result, err := h.sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return fail("cleanup expired shares", err)
	}
	return c.JSON(http.StatusOK, result)
}
