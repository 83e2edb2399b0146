package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY, raised by UNIQUE(user_id, date).
const mysqlDuplicateEntry = 1062

// ErrAlreadyMarked is returned by Create when the user already has a record
// for that date.
var ErrAlreadyMarked = errors.New("attendance already recorded for date")

// AttendanceRepository defines the data access contract for attendance.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AttendanceRepository interface {
	Create(ctx context.Context, record *Record) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// attendanceRepository implements AttendanceRepository with MariaDB queries.
type attendanceRepository struct {
	db *sql.DB
}

// NewAttendanceRepository creates a new repository backed by the given DB pool.
func NewAttendanceRepository(db *sql.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

// Create inserts a record. The unique index makes a second mark for the
// same date fail atomically, even under concurrent requests.
func (r *attendanceRepository) Create(ctx context.Context, record *Record) error {
	query := `INSERT INTO attendance (id, user_id, member_no, date, status, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.MemberNo, record.Date, record.Status, record.CreatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrAlreadyMarked
		}
		return fmt.Errorf("inserting attendance: %w", err)
	}
	return nil
}

// ListByUser returns the user's records, most recent date first.
func (r *attendanceRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	query := `SELECT id, user_id, member_no, date, status, created_at
	          FROM attendance
	          WHERE user_id = ?
	          ORDER BY date DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing attendance: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var date time.Time
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.MemberNo, &date, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning attendance: %w", err)
		}
		rec.Date = date.Format(dateLayout)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance: %w", err)
	}

	return records, nil
}

// ListAll returns every record joined with the member's name, most recent
// date first. Records whose user no longer exists are left out.
func (r *attendanceRepository) ListAll(ctx context.Context) ([]Record, error) {
	query := `SELECT a.id, a.user_id, a.member_no, a.date, a.status, a.created_at, u.name
	          FROM attendance a
	          JOIN users u ON u.id = a.user_id
	          ORDER BY a.date DESC, a.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing all attendance: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var date time.Time
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.MemberNo, &date, &rec.Status, &rec.CreatedAt, &rec.Name); err != nil {
			return nil, fmt.Errorf("scanning attendance: %w", err)
		}
		rec.Date = date.Format(dateLayout)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance: %w", err)
	}

	return records, nil
}
