package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/rollcall/internal/apperror"
	"github.com/keyxmakerx/rollcall/internal/plugins/auth"
)

// AttendanceService handles business logic for attendance marking.
type AttendanceService interface {
	Mark(ctx context.Context, claims *auth.Claims, status string) (*Record, error)
	History(ctx context.Context, userID string) ([]Record, error)

	// ListAll returns every member's records for an admin, newest date first.
	ListAll(ctx context.Context, actor *auth.Claims) ([]Record, error)
}

// attendanceService implements AttendanceService.
type attendanceService struct {
	repo     AttendanceRepository
	schedule *Schedule
	now      func() time.Time
}

// NewAttendanceService creates a new attendance service.
func NewAttendanceService(repo AttendanceRepository, schedule *Schedule) AttendanceService {
	return &attendanceService{repo: repo, schedule: schedule, now: time.Now}
}

// Mark records the caller's attendance for today. Only allowed on the
// schedule's weekday, once per date.
func (s *attendanceService) Mark(ctx context.Context, claims *auth.Claims, status string) (*Record, error) {
	if claims == nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}

	now := s.now()
	date, open := s.schedule.Day(now)
	if !open {
		return nil, apperror.NewBadRequest(fmt.Sprintf("attendance can only be marked on %s", s.schedule.Weekday()))
	}

	record := &Record{
		ID:        uuid.NewString(),
		UserID:    claims.UserID(),
		MemberNo:  claims.MemberNo,
		Date:      date,
		Status:    memberStatus(status),
		CreatedAt: now.UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, ErrAlreadyMarked) {
			return nil, apperror.NewConflict("attendance already marked for today")
		}
		return nil, apperror.NewInternal(fmt.Errorf("marking attendance: %w", err))
	}

	slog.Info("attendance marked",
		slog.String("user_id", record.UserID),
		slog.String("date", record.Date),
		slog.String("status", record.Status),
	)
	return record, nil
}

// History returns the user's latest records, newest first.
func (s *attendanceService) History(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, apperror.NewUnauthorized("authentication required")
	}

	records, err := s.repo.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading attendance history: %w", err))
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *attendanceService) ListAll(ctx context.Context, actor *auth.Claims) ([]Record, error) {
	if actor == nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}
	if !actor.IsAdmin {
		return nil, apperror.NewForbidden("admin access required")
	}

	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing attendance: %w", err))
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
