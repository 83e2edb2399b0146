// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development, except for
// the session signing secret, which has no default.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Throttle store backends.
const (
	ThrottleStoreRedis   = "redis"
	ThrottleStoreMariaDB = "mariadb"
	ThrottleStoreMemory  = "memory"
)

// ErrMissingSecret is returned by Load when SECRET_KEY is not set. The
// server refuses to start without a signing secret.
var ErrMissingSecret = errors.New("SECRET_KEY is required")

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL, also the default CORS origin.
	BaseURL string

	// LogLevel overrides log verbosity: "debug", "info", "warn", "error".
	// Empty means debug in development and info otherwise.
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds session and hashing settings.
	Auth AuthConfig

	// Throttle holds failed-login throttling settings.
	Throttle ThrottleConfig

	// HTTP holds proxy and CORS settings.
	HTTP HTTPConfig

	// Attendance holds the weekly attendance window settings.
	Attendance AttendanceConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is set,
// it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is re-encoded with parseTime and UTC forced on, since DATETIME
// columns are scanned into time.Time. Otherwise the DSN is built with the
// driver's Config.FormatDSN() to safely handle special characters in
// passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		cfg, err := mysql.ParseDSN(d.dsnOverride)
		if err != nil {
			// Load rejects unparsable overrides; keep the raw value otherwise.
			return d.dsnOverride
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN()
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey is the HS256 session signing key.
	SecretKey string

	// SessionTTL is how long a signed session stays valid (default: 8h).
	SessionTTL time.Duration

	// BcryptCost is the bcrypt work factor for credential hashes (default: 12).
	BcryptCost int

	// SecureCookies marks the session cookie Secure. Off only in development.
	SecureCookies bool
}

// ThrottleConfig holds failed-login throttling settings.
type ThrottleConfig struct {
	// Store selects the backend: "redis", "mariadb" or "memory".
	Store string

	// MaxAttempts is the failure count that triggers a lockout (default: 5).
	MaxAttempts int

	// Window is the accumulation window for failures (default: 5m).
	Window time.Duration

	// Lockout is how long a lock lasts from the moment it is set (default: 15m).
	Lockout time.Duration

	// LoginRatePerMinute caps raw login requests per IP regardless of outcome.
	LoginRatePerMinute int
}

// HTTPConfig holds reverse proxy and CORS settings.
type HTTPConfig struct {
	// TrustedProxies lists CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	// CORSOrigins lists origins allowed to call the API cross-origin.
	CORSOrigins []string
}

// AttendanceConfig holds the weekly attendance window.
type AttendanceConfig struct {
	// Timezone is the IANA zone used to decide the attendance date.
	Timezone string

	// Weekday is the only day attendance can be marked.
	Weekday time.Weekday
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "rollcall"),
			Password:        getEnv("DB_PASSWORD", "rollcall"),
			Name:            getEnv("DB_NAME", "rollcall"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey:  getEnv("SECRET_KEY", ""),
			SessionTTL: getEnvDuration("SESSION_TTL", 8*time.Hour),
			BcryptCost: getEnvInt("BCRYPT_COST", 12),
		},

		Throttle: ThrottleConfig{
			Store:              strings.ToLower(getEnv("THROTTLE_STORE", ThrottleStoreRedis)),
			MaxAttempts:        getEnvInt("THROTTLE_MAX_ATTEMPTS", 5),
			Window:             getEnvDuration("THROTTLE_WINDOW", 5*time.Minute),
			Lockout:            getEnvDuration("THROTTLE_LOCKOUT", 15*time.Minute),
			LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 20),
		},

		HTTP: HTTPConfig{
			TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
				"127.0.0.0/8",
				"10.0.0.0/8",
				"172.16.0.0/12",
				"192.168.0.0/16",
				"fd00::/8",
			}),
		},

		Attendance: AttendanceConfig{
			Timezone: getEnv("ATTENDANCE_TIMEZONE", "Asia/Jakarta"),
		},
	}

	cfg.HTTP.CORSOrigins = getEnvList("CORS_ORIGINS", []string{cfg.BaseURL})
	cfg.Auth.SecureCookies = !cfg.IsDevelopment()

	weekday, err := parseWeekday(getEnv("ATTENDANCE_WEEKDAY", "saturday"))
	if err != nil {
		return nil, err
	}
	cfg.Attendance.Weekday = weekday

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces the startup invariants. The signing secret is required
// in every environment: sessions cannot be verified without it.
func (c *Config) validate() error {
	if c.Auth.SecretKey == "" {
		return ErrMissingSecret
	}
	if c.Database.dsnOverride != "" {
		if _, err := mysql.ParseDSN(c.Database.dsnOverride); err != nil {
			return fmt.Errorf("DATABASE_URL is not a valid DSN: %w", err)
		}
	}
	if c.IsProduction() && len(c.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	switch c.Throttle.Store {
	case ThrottleStoreRedis, ThrottleStoreMariaDB, ThrottleStoreMemory:
	default:
		return fmt.Errorf("THROTTLE_STORE must be redis, mariadb or memory, got %q", c.Throttle.Store)
	}
	if c.Throttle.MaxAttempts < 1 {
		return fmt.Errorf("THROTTLE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Throttle.Window <= 0 || c.Throttle.Lockout <= 0 {
		return fmt.Errorf("THROTTLE_WINDOW and THROTTLE_LOCKOUT must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and "prod" in any case.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// parseWeekday accepts full English day names in any case.
func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("ATTENDANCE_WEEKDAY %q is not a weekday name", s)
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "15m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty items.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
