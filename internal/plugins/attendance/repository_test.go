package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRepository_CreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO attendance`).
		WithArgs("rec-1", "user-1", "99887766", "2026-03-07", StatusPresent, sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry"})

	err = NewAttendanceRepository(db).Create(context.Background(), &Record{
		ID: "rec-1", UserID: "user-1", MemberNo: "99887766", Date: "2026-03-07", Status: StatusPresent,
		CreatedAt: time.Now(),
	})
	assert.True(t, errors.Is(err, ErrAlreadyMarked))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 7, 1, 5, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "member_no", "date", "status", "created_at"}).
		AddRow("rec-2", "user-1", "99887766", time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), StatusExcused, created).
		AddRow("rec-1", "user-1", "99887766", time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), StatusPresent, created.AddDate(0, 0, -7))

	mock.ExpectQuery(`FROM attendance`).
		WithArgs("user-1", historyLimit).
		WillReturnRows(rows)

	records, err := NewAttendanceRepository(db).ListByUser(context.Background(), "user-1", historyLimit)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2026-03-07", records[0].Date)
	assert.Equal(t, StatusExcused, records[0].Status)
	assert.Equal(t, "2026-02-28", records[1].Date)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_ListAllJoinsNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 7, 1, 5, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "member_no", "date", "status", "created_at", "name"}).
		AddRow("rec-3", "user-2", "11223344", time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), StatusPresent, created.Add(time.Minute), "Budi").
		AddRow("rec-2", "user-1", "99887766", time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), StatusExcused, created, "Sari").
		AddRow("rec-1", "user-1", "99887766", time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), StatusPresent, created.AddDate(0, 0, -7), "Sari")

	mock.ExpectQuery(`FROM attendance a\s+JOIN users u ON u.id = a.user_id\s+ORDER BY a.date DESC, a.created_at DESC`).
		WillReturnRows(rows)

	records, err := NewAttendanceRepository(db).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Budi", records[0].Name)
	assert.Equal(t, "2026-03-07", records[0].Date)
	assert.Equal(t, "Sari", records[2].Name)
	assert.Equal(t, "2026-02-28", records[2].Date)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_ListAllQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM attendance a`).WillReturnError(errors.New("connection refused"))

	_, err = NewAttendanceRepository(db).ListAll(context.Background())
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
