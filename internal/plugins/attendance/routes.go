package attendance

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up attendance routes. Mark and history are member
// APIs; the listing under /api/admin is admin-only. The auth gateway
// rejects requests without the right session before they get here.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.POST("/api/attendance/mark", h.Mark)
	e.GET("/api/attendance/history", h.History)
	e.GET("/api/admin/attendance", h.ListAll)
}
