package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/rollcall/internal/database"
	"github.com/keyxmakerx/rollcall/internal/plugins/attendance"
	"github.com/keyxmakerx/rollcall/internal/plugins/audit"
	"github.com/keyxmakerx/rollcall/internal/plugins/auth"
	"github.com/keyxmakerx/rollcall/internal/plugins/throttle"
)

// healthTimeout bounds the backend pings behind /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes wires every plugin (repository -> service -> handler) and
// registers its routes. Access control is the global auth guard; plugins
// only declare paths.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() error {
	e := a.Echo
	cfg := a.Config

	// --- Public Routes ---

	// Health check endpoint for container health monitoring. Redis is only
	// connected when it backs the throttle. Nil pointers are kept out of the
	// interfaces so Check skips them.
	var db database.Pinger
	if a.DB != nil {
		db = a.DB
	}
	var rdb redis.UniversalClient
	if a.Redis != nil {
		rdb = a.Redis
	}
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		if err := database.Check(ctx, db, rdb); err != nil {
			slog.Warn("health check failed", slog.Any("error", err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- Plugins ---

	// audit plugin (admin API; also used by auth for admin actions)
	auditService := audit.NewAuditService(audit.NewAuditRepository(a.DB))
	audit.RegisterRoutes(e, audit.NewHandler(auditService))

	// throttle plugin (no routes; consulted by login)
	throttleService := throttle.NewThrottleService(a.ThrottleStore, throttle.Policy{
		MaxAttempts: cfg.Throttle.MaxAttempts,
		Window:      cfg.Throttle.Window,
		Lockout:     cfg.Throttle.Lockout,
	})

	// auth plugin (login, logout, password management, provisioning)
	authService, err := auth.NewAuthService(
		auth.NewUserRepository(a.DB),
		auth.NewHasher(cfg.Auth.BcryptCost),
		a.Codec,
		throttleService,
		auditService,
	)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}
	auth.RegisterRoutes(e, auth.NewHandler(authService, a.Gateway), cfg.Throttle.LoginRatePerMinute)

	// attendance plugin (member API)
	schedule := attendance.NewSchedule(cfg.Attendance.Timezone, cfg.Attendance.Weekday)
	attendanceService := attendance.NewAttendanceService(attendance.NewAttendanceRepository(a.DB), schedule)
	attendance.RegisterRoutes(e, attendance.NewHandler(attendanceService))

	return nil
}
