package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/job-portal/internal/apperror"
	"github.com/sakif/job-portal/internal/model"
	"github.com/sakif/job-portal/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, full_name, phone_number, password_hash, role, profile, created_at, updated_at`

// Create inserts a new user with a fresh xid and timestamps.
//
// The UNIQUE constraint on email is the source of truth for duplicates; the
// service's lookup beforehand only gives a nicer early exit.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return fmt.Errorf("sqlite: encoding profile: %w", err)
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.FullName,
		user.PhoneNumber,
		user.PasswordHash,
		string(user.Role),
		string(profile),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateIdentity()
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// Save overwrites every mutable column of the stored user.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return fmt.Errorf("sqlite: encoding profile: %w", err)
	}

	user.Email = model.NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, full_name = ?, phone_number = ?, password_hash = ?, role = ?, profile = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email,
		user.FullName,
		user.PhoneNumber,
		user.PasswordHash,
		string(user.Role),
		string(profile),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateIdentity()
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %s: %w", user.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("user")
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by normalized email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, model.NormalizeEmail(email))
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u       model.User
		role    string
		profile string
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.PhoneNumber,
		&u.PasswordHash,
		&role,
		&profile,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("sqlite: scanning user: %w", err)
	}

	u.Role = model.Role(role)
	if err := json.Unmarshal([]byte(profile), &u.Profile); err != nil {
		return nil, fmt.Errorf("sqlite: decoding profile of user %s: %w", u.ID, err)
	}

	return &u, nil
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
