package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up audit routes. Everything under /api/admin is
// classified as admin API by the auth gateway, so no extra middleware is
// attached here.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/admin/audit", h.Recent)
}
