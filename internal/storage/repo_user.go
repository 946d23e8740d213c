package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type userRepository struct {
	db *sql.DB
}

const userColumns = `id, username, password_hash, full_name, email, is_admin, is_active, last_login_at, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("create user: user is nil")
	}
	if err := validateUser(user); err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return validationErrorf("password hash is required")
	}
	if err := r.ensureUniqueUsername(ctx, user.Username, 0); err != nil {
		return err
	}

	now := nowUTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO users(username, password_hash, full_name, email, is_admin, is_active, last_login_at, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, user.Username, user.PasswordHash, user.FullName, nullableString(user.Email), boolToInt(user.IsAdmin), boolToInt(user.IsActive), fmtTime(now), fmtTime(now))
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: username %q", ErrDuplicate, user.Username)
		}
		return fmt.Errorf("create user: insert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: last insert id: %w", err)
	}
	user.ID = id
	user.LastLoginAt = nil
	return nil
}

func (r *userRepository) Get(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, strings.TrimSpace(username))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out = append(out, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: iterate: %w", err)
	}
	return out, nil
}

// Update writes profile and role fields. The password hash is not touched;
// use UpdatePassword.
func (r *userRepository) Update(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("update user: user is nil")
	}
	if user.ID == 0 {
		return validationErrorf("user id is required")
	}
	if err := validateUser(user); err != nil {
		return err
	}
	if err := r.ensureUniqueUsername(ctx, user.Username, user.ID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update user: begin tx: %w", err)
	}

	if !user.IsAdmin || !user.IsActive {
		if err := ensureOtherActiveAdmin(ctx, tx, user.ID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	user.UpdatedAt = nowUTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET username = ?, full_name = ?, email = ?, is_admin = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, user.Username, user.FullName, nullableString(user.Email), boolToInt(user.IsAdmin), boolToInt(user.IsActive), fmtTime(user.UpdatedAt), user.ID)
	if err != nil {
		_ = tx.Rollback()
		if isDuplicateError(err) {
			return fmt.Errorf("%w: username %q", ErrDuplicate, user.Username)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if err := expectOneRow(result, "update user"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update user: commit: %w", err)
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	if passwordHash == "" {
		return validationErrorf("password hash is required")
	}
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, fmtTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return expectOneRow(result, "update user password")
}

// TouchLastLogin records a login without refreshing updated_at, which tracks
// edits to the record.
func (r *userRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return expectOneRow(result, "touch last login")
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete user: begin tx: %w", err)
	}
	if err := ensureOtherActiveAdmin(ctx, tx, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete user: %w", err)
	}
	if err := expectOneRow(result, "delete user"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete user: commit: %w", err)
	}
	return nil
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *userRepository) ensureUniqueUsername(ctx context.Context, username string, excludeID int64) error {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?`, username, excludeID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check username uniqueness: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: username %q", ErrDuplicate, username)
	}
	return nil
}

// ensureOtherActiveAdmin refuses a change that would leave no active
// administrator. Targets that are not active admins pass unconditionally.
func ensureOtherActiveAdmin(ctx context.Context, tx *sql.Tx, id int64) error {
	var isActiveAdmin int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ? AND is_admin = 1 AND is_active = 1`, id).Scan(&isActiveAdmin)
	if err != nil {
		return fmt.Errorf("check administrators: %w", err)
	}
	if isActiveAdmin == 0 {
		return nil
	}

	var others int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id <> ? AND is_admin = 1 AND is_active = 1`, id).Scan(&others)
	if err != nil {
		return fmt.Errorf("check administrators: %w", err)
	}
	if others == 0 {
		return ErrLastAdmin
	}
	return nil
}

func validateUser(user *User) error {
	user.Username = strings.TrimSpace(user.Username)
	user.FullName = strings.TrimSpace(user.FullName)
	if user.Username == "" {
		return validationErrorf("username is required")
	}
	if user.FullName == "" {
		return validationErrorf("full name is required")
	}
	return nil
}

func scanUser(scanner rowScanner) (*User, error) {
	var (
		user      User
		email     sql.NullString
		isAdmin   int
		isActive  int
		lastLogin sql.NullString
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FullName, &email, &isAdmin, &isActive, &lastLogin, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	user.Email = email.String
	user.IsAdmin = isAdmin != 0
	user.IsActive = isActive != 0
	if user.LastLoginAt, err = parseNullableTime(lastLogin); err != nil {
		return nil, err
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}
