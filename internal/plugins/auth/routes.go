package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rollcall/internal/middleware"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Access control comes from Guard, applied globally: login and logout are
// public, change-password is a member API and everything under /api/admin
// is an admin API.
//
// Both login endpoints share one coarse per-IP request limiter on top of the
// failed-attempt throttle, so floods are cut off even when they succeed.
func RegisterRoutes(e *echo.Echo, h *Handler, loginPerMinute int) {
	loginLimit := middleware.RateLimit(loginPerMinute, time.Minute)

	e.POST("/api/auth/login", h.Login, loginLimit)
	e.POST("/api/admin/login", h.AdminLogin, loginLimit)
	e.POST("/api/auth/logout", h.Logout)

	e.PATCH("/api/auth/change-password", h.ChangePassword)

	e.PATCH("/api/admin/reset-password", h.ResetPassword)
	e.POST("/api/admin/users", h.CreateUser)
}
