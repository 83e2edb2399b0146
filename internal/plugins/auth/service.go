package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/rollcall/internal/apperror"
	"github.com/keyxmakerx/rollcall/internal/plugins/audit"
	"github.com/keyxmakerx/rollcall/internal/plugins/throttle"
)

// Client-facing messages. Unknown identity and wrong secret share one.
const (
	msgInvalidCredentials = "invalid credentials"
	msgTooManyAttempts    = "too many login attempts, please try again later"
)

// unknownClient is the throttle identity used when no client address could
// be determined. All such requests share one bucket.
const unknownClient = "unknown"

// dummySecret is hashed once at startup. Logins for unknown identities are
// compared against it so they cost the same bcrypt work as real ones.
const dummySecret = "rollcall-timing-equalizer"

// maxMemberNoLength matches the users.member_no column.
const maxMemberNoLength = 64

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	ChangePassword(ctx context.Context, claims *Claims, current, next string) error
	ResetPassword(ctx context.Context, actor *Claims, userID, next string) error
	CreateUser(ctx context.Context, actor *Claims, input CreateUserInput) (*User, error)
}

// authService implements AuthService with bcrypt hashes, signed sessions
// and the login throttle.
type authService struct {
	repo      UserRepository
	hasher    *Hasher
	codec     *SessionCodec
	throttle  throttle.ThrottleService
	audit     audit.AuditService
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
// auditSvc may be nil, in which case admin actions are not recorded.
func NewAuthService(repo UserRepository, hasher *Hasher, codec *SessionCodec, throttleSvc throttle.ThrottleService, auditSvc audit.AuditService) (AuthService, error) {
	dummy, err := hasher.Hash(dummySecret)
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}
	return &authService{
		repo:      repo,
		hasher:    hasher,
		codec:     codec,
		throttle:  throttleSvc,
		audit:     auditSvc,
		dummyHash: dummy,
	}, nil
}

// Login authenticates one attempt. Order matters: cheap validation, then
// the throttle, then storage, then bcrypt. A locked client never reaches
// credential storage, even with the correct secret.
func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	memberNo := strings.TrimSpace(input.MemberNo)
	if memberNo == "" {
		return nil, apperror.NewBadRequest("member number is required")
	}
	if err := validateSecret(input.Password, "password"); err != nil {
		return nil, err
	}

	client := input.ClientID
	if client == "" {
		client = unknownClient
	}

	status, err := s.throttle.Check(ctx, client)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if status.Blocked {
		return nil, apperror.NewTooManyRequests(msgTooManyAttempts, status.RetryAfterSeconds())
	}

	user, err := s.repo.FindByMemberNo(ctx, memberNo, input.AdminRequired)
	if err != nil && !isNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	matched := s.hasher.Verify(input.Password, hash)

	if user == nil || !matched {
		return nil, s.registerFailure(ctx, client)
	}

	if err := s.throttle.Reset(ctx, client); err != nil {
		return nil, apperror.NewInternal(err)
	}

	token, expiresAt, err := s.codec.Sign(Identity{ID: user.ID, MemberNo: user.MemberNo, IsAdmin: user.IsAdmin})
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("member_no", user.MemberNo),
		slog.Bool("admin_login", input.AdminRequired),
	)

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// registerFailure counts a failed attempt and returns the error for the
// caller. The attempt itself always reads as invalid credentials; the lock
// it may have set applies from the next attempt on.
func (s *authService) registerFailure(ctx context.Context, client string) error {
	status, err := s.throttle.RegisterFailure(ctx, client)
	if err != nil {
		return apperror.NewInternal(err)
	}
	slog.Debug("login failed", slog.Int("attempts", status.Attempts), slog.Bool("locked", status.Blocked))
	return apperror.NewUnauthorized(msgInvalidCredentials)
}

// ChangePassword rotates the caller's own secret after verifying the
// current one. The stored hash is untouched on any failure.
func (s *authService) ChangePassword(ctx context.Context, claims *Claims, current, next string) error {
	if claims == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if current == "" {
		return apperror.NewBadRequest("current password is required")
	}
	if err := validateSecret(next, "new password"); err != nil {
		return err
	}

	user, err := s.repo.FindByID(ctx, claims.UserID())
	if err != nil {
		if isNotFound(err) {
			return apperror.NewUnauthorized("authentication required")
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperror.NewUnauthorized("current password is incorrect")
	}

	if err := s.storeNewSecret(ctx, user.ID, next); err != nil {
		return err
	}

	slog.Info("password changed", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword lets an admin replace any user's secret. The action is
// written to the audit log.
func (s *authService) ResetPassword(ctx context.Context, actor *Claims, userID, next string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperror.NewBadRequest("user ID is required")
	}
	if err := validateSecret(next, "new password"); err != nil {
		return err
	}

	if err := s.storeNewSecret(ctx, userID, next); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, audit.ActionPasswordReset, map[string]any{"user_id": userID})

	slog.Info("password reset by admin",
		slog.String("actor_id", actor.UserID()),
		slog.String("user_id", userID),
	)
	return nil
}

// CreateUser provisions a member or admin account.
func (s *authService) CreateUser(ctx context.Context, actor *Claims, input CreateUserInput) (*User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	memberNo := strings.TrimSpace(input.MemberNo)
	if memberNo == "" {
		return nil, apperror.NewBadRequest("member number is required")
	}
	if len(memberNo) > maxMemberNoLength {
		return nil, apperror.NewBadRequest(fmt.Sprintf("member number must be at most %d characters", maxMemberNoLength))
	}
	if err := validateSecret(input.Password, "password"); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           uuid.NewString(),
		MemberNo:     memberNo,
		Name:         strings.TrimSpace(input.Name),
		IsAdmin:      input.IsAdmin,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateMemberNo) {
			return nil, apperror.NewConflict("a user with this member number already exists")
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	s.recordAudit(ctx, actor, audit.ActionUserCreated, map[string]any{
		"user_id":   user.ID,
		"member_no": user.MemberNo,
		"is_admin":  user.IsAdmin,
	})

	slog.Info("user created",
		slog.String("actor_id", actor.UserID()),
		slog.String("user_id", user.ID),
		slog.String("member_no", user.MemberNo),
	)
	return user, nil
}

// storeNewSecret hashes and persists a replacement secret.
func (s *authService) storeNewSecret(ctx context.Context, userID, secret string) error {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if isNotFound(err) {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}
	return nil
}

// recordAudit writes an admin action. Failures are logged by the audit
// service and never fail the primary operation.
func (s *authService) recordAudit(ctx context.Context, actor *Claims, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.AuditEntry{
		ActorID:       actor.UserID(),
		ActorMemberNo: actor.MemberNo,
		Action:        action,
		Metadata:      metadata,
	}
	if u, err := s.repo.FindByID(ctx, actor.UserID()); err == nil {
		entry.ActorName = u.Name
		entry.ActorMemberNo = u.MemberNo
	}

	_ = s.audit.Log(ctx, entry)
}

// --- Helpers ---

// requireAdmin rejects a missing or non-admin actor.
func requireAdmin(actor *Claims) error {
	if actor == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if !actor.IsAdmin {
		return apperror.NewForbidden("admin access required")
	}
	return nil
}

// validateSecret enforces the length rules before any storage access.
func validateSecret(secret, field string) error {
	if len(secret) < MinSecretLength {
		return apperror.NewBadRequest(fmt.Sprintf("%s must be at least %d characters", field, MinSecretLength))
	}
	if len(secret) > MaxSecretLength {
		return apperror.NewBadRequest(fmt.Sprintf("%s must be at most %d bytes", field, MaxSecretLength))
	}
	return nil
}

// isNotFound reports whether err is an AppError with a 404 code.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == 404
}
