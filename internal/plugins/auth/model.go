// Package auth handles credential hashing, stateless signed sessions, login
// with failed-attempt throttling, and the per-request access decision for
// Rollcall. Sessions are HS256 JWTs carried in an HttpOnly cookie; the
// server keeps no session table.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Secret length limits. bcrypt ignores input past 72 bytes, so longer
// secrets are rejected instead of silently truncated.
const (
	MinSecretLength = 8
	MaxSecretLength = 72
)

// User represents a Rollcall account: a member or an admin. MemberNo is the
// public identifier people log in with (a student number for members, an
// admin id for admins).
type User struct {
	ID           string    `json:"id"`
	MemberNo     string    `json:"member_no"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"` // Never expose in JSON responses.
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the subset of a user that is signed into a session.
type Identity struct {
	ID       string
	MemberNo string
	IsAdmin  bool
}

// Claims is the decoded session token. Subject carries the user ID.
type Claims struct {
	MemberNo string `json:"member_no"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// UserID returns the identity ID the session was issued for.
func (c *Claims) UserID() string {
	return c.Subject
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest is the member login body.
type LoginRequest struct {
	MemberNo string `json:"member_no"`
	Password string `json:"password"`
}

// AdminLoginRequest is the admin login body.
type AdminLoginRequest struct {
	AdminID  string `json:"admin_id"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the self-service rotation body.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ResetPasswordRequest is the admin-initiated rotation body.
type ResetPasswordRequest struct {
	UserID      string `json:"user_id"`
	NewPassword string `json:"new_password"`
}

// CreateUserRequest is the admin provisioning body.
type CreateUserRequest struct {
	MemberNo string `json:"member_no"`
	Password string `json:"password"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"is_admin"`
}

// --- Service Input DTOs (passed from handler to service) ---

// LoginInput is one login attempt. AdminRequired restricts the lookup to
// admin accounts server-side. ClientID is the network identity the throttle
// counts against.
type LoginInput struct {
	MemberNo      string
	Password      string
	AdminRequired bool
	ClientID      string
}

// CreateUserInput is the validated input for provisioning an account.
type CreateUserInput struct {
	MemberNo string
	Password string
	Name     string
	IsAdmin  bool
}

// LoginResult is what a successful login hands back to the handler.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}
