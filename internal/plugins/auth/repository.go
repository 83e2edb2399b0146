package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/rollcall/internal/apperror"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY, raised by the unique member_no index.
const mysqlDuplicateEntry = 1062

// ErrDuplicateMemberNo is returned by Create when the member number is taken.
var ErrDuplicateMemberNo = errors.New("member number already exists")

// UserRepository defines the data access contract for user credentials.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	// FindByMemberNo looks up by public identifier. With adminOnly set,
	// non-admin rows are filtered out in the query itself.
	FindByMemberNo(ctx context.Context, memberNo string, adminOnly bool) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Create(ctx context.Context, user *User) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, member_no, name, password_hash, is_admin, created_at`

// FindByMemberNo retrieves a user by member number.
// Returns apperror.NotFound if no (matching) user exists.
func (r *userRepository) FindByMemberNo(ctx context.Context, memberNo string, adminOnly bool) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE member_no = ?`
	if adminOnly {
		query += ` AND is_admin = TRUE`
	}
	return r.scanOne(r.db.QueryRowContext(ctx, query, memberNo))
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// UpdatePasswordHash replaces the stored hash.
// Returns apperror.NotFound if the user does not exist.
func (r *userRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, hash, id,
	)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking password update: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// Create inserts a new user row into the users table.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, member_no, name, password_hash, is_admin, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.MemberNo,
		user.Name,
		user.PasswordHash,
		user.IsAdmin,
		user.CreatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateMemberNo
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

func (r *userRepository) scanOne(row *sql.Row) (*User, error) {
	user := &User{}
	var name sql.NullString
	err := row.Scan(
		&user.ID,
		&user.MemberNo,
		&name,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	user.Name = name.String
	return user, nil
}
