// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together all plugins.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/rollcall/internal/apperror"
	"github.com/keyxmakerx/rollcall/internal/config"
	"github.com/keyxmakerx/rollcall/internal/middleware"
	"github.com/keyxmakerx/rollcall/internal/plugins/auth"
	"github.com/keyxmakerx/rollcall/internal/plugins/throttle"
	"github.com/keyxmakerx/rollcall/internal/templates/pages"
)

// throttlePurgeInterval is how often expired MariaDB throttle rows are
// deleted. Redis expires keys itself and MemoryStore prunes inline.
const throttlePurgeInterval = 10 * time.Minute

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis is the Redis client, used by the login throttle.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Codec signs and verifies sessions. Built once; an empty signing
	// secret stops New.
	Codec *auth.SessionCodec

	// Gateway makes the per-request access decision.
	Gateway *auth.Gateway

	// ThrottleStore backs the login throttle, chosen by THROTTLE_STORE.
	ThrottleStore throttle.Store
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	codec, err := auth.NewSessionCodec(cfg.Auth.SecretKey, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating session codec: %w", err)
	}

	store, err := newThrottleStore(cfg.Throttle.Store, db, rdb)
	if err != nil {
		return nil, err
	}

	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. The login throttle keys on it.
	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	app := &App{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Echo:          e,
		Codec:         codec,
		Gateway:       auth.NewGateway(codec, cfg.Auth.SecureCookies),
		ThrottleStore: store,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// newThrottleStore selects the throttle backend.
func newThrottleStore(kind string, db *sql.DB, rdb *redis.Client) (throttle.Store, error) {
	switch kind {
	case config.ThrottleStoreRedis:
		if rdb == nil {
			return nil, errors.New("throttle store redis selected but no Redis client")
		}
		return throttle.NewRedisStore(rdb), nil
	case config.ThrottleStoreMariaDB:
		if db == nil {
			return nil, errors.New("throttle store mariadb selected but no database")
		}
		return throttle.NewMariaDBStore(db), nil
	case config.ThrottleStoreMemory:
		slog.Warn("login throttle uses in-process memory; counts are not shared across replicas")
		return throttle.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown throttle store %q", kind)
	}
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (auth guard)
// runs last.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, no-store on the API. HSTS
	// only when cookies are Secure, i.e. outside development.
	a.Echo.Use(middleware.SecurityHeaders(a.Config.Auth.SecureCookies))

	// CORS -- the API is same-origin by default; extra origins come from
	// CORS_ORIGINS.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.HTTP.CORSOrigins,
		AllowCredentials: true,
	}))

	// Auth guard -- allow, redirect or reject every request by path class
	// and session.
	a.Echo.Use(auth.Guard(a.Gateway))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses, and renders an error page for
// browser requests or JSON for API requests.
//
// For 401 errors on browser requests, we redirect to the login page.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	// Domain errors carry their own code and client-safe message; anything
	// else starts as a generic 500.
	code := apperror.SafeCode(err)
	message := apperror.SafeMessage(err)
	retryAfter := 0

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		retryAfter = appErr.RetryAfter

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	if retryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	// API requests always get JSON.
	if middleware.IsAPIRequest(c) {
		body := map[string]any{
			"error":   http.StatusText(code),
			"message": message,
		}
		if retryAfter > 0 {
			body["retry_after"] = retryAfter
		}
		_ = c.JSON(code, body)
		return
	}

	// Regular browser 401 -- redirect to login page.
	if code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	_ = middleware.Render(c, code, pages.ErrorPage(code, message))
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to log in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusConflict:
		return "This action conflicts with the current state."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// StartMaintenance runs periodic housekeeping until ctx is done. Only the
// MariaDB throttle store needs it.
func (a *App) StartMaintenance(ctx context.Context) {
	store, ok := a.ThrottleStore.(*throttle.MariaDBStore)
	if !ok {
		return
	}

	go func() {
		ticker := time.NewTicker(throttlePurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.PurgeExpired(ctx)
				if err != nil {
					slog.Warn("throttle purge failed", slog.Any("error", err))
					continue
				}
				if n > 0 {
					slog.Debug("purged expired throttle entries", slog.Int64("rows", n))
				}
			}
		}
	}()
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Rollcall server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("throttle_store", a.Config.Throttle.Store),
	)
	return a.Echo.Start(addr)
}
