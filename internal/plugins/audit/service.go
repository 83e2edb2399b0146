package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/rollcall/internal/apperror"
)

// AuditService handles business logic for the audit log. It validates inputs,
// enforces limits, and delegates persistence to the repository.
type AuditService interface {
	// Log records an audit entry. Designed to be fire-and-forget friendly:
	// errors are logged but callers may choose to ignore them since audit
	// failures should not block the primary operation.
	Log(ctx context.Context, entry *AuditEntry) error

	// Recent returns the newest entries. The limit is clamped to 1..100;
	// zero or negative means the default of 10.
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// Log validates and persists an audit entry. Missing required fields cause
// a validation error. Logging failures are recorded via slog so the caller
// can treat this as fire-and-forget when appropriate.
func (s *auditService) Log(ctx context.Context, entry *AuditEntry) error {
	if entry.ActorID == "" {
		return apperror.NewBadRequest("actor ID is required for audit entry")
	}
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("actor_id", entry.ActorID),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}

	return nil
}

// Recent returns the latest audit entries, newest first.
func (s *auditService) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultRecentLimit
	case limit > maxRecentLimit:
		limit = maxRecentLimit
	}

	entries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit entries: %w", err))
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}
