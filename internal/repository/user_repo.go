package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat_terminal/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure implementation of Users interface at compile time.
var _ Users = (*UserRepository)(nil)

const (
	insertUserSQL = `INSERT INTO users (username, password_hash, email, permissions, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash, email, permissions, is_active, created_at, last_login
FROM users WHERE username = ?`
	selectUsersSQL = `SELECT id, username, password_hash, email, permissions, is_active, created_at, last_login
FROM users ORDER BY username`
	countUsersSQL      = `SELECT COUNT(*) FROM users`
	updateLastLoginSQL = `UPDATE users SET last_login = ? WHERE username = ?`
	deleteUserSQL      = `DELETE FROM users WHERE username = ?`
)

// Create inserts a new user and returns its ID.
func (r *UserRepository) Create(u *models.User) (int64, error) {
	res, err := r.db.Exec(insertUserSQL,
		u.Username, u.PasswordHash, nullString(u.Email),
		joinPermissions(u.Permissions), u.IsActive, u.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", u.Username, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for user %q: %w", u.Username, err)
	}
	return lastID, nil
}

// GetByUsername fetches a user by username. Returns (nil, nil) if not found.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(selectUserByUsernameSQL, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	return u, nil
}

// List returns all users ordered by username.
func (r *UserRepository) List() ([]models.User, error) {
	rows, err := r.db.Query(selectUsersSQL)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(countUsersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// UpdateLastLogin records the latest successful login time.
func (r *UserRepository) UpdateLastLogin(username string, t time.Time) error {
	if _, err := r.db.Exec(updateLastLoginSQL, t, username); err != nil {
		return fmt.Errorf("update last login for %q: %w", username, err)
	}
	return nil
}

// Delete removes a user row. Deleting an absent user is not an error.
func (r *UserRepository) Delete(username string) error {
	if _, err := r.db.Exec(deleteUserSQL, username); err != nil {
		return fmt.Errorf("delete user %q: %w", username, err)
	}
	return nil
}

// scannable covers both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*models.User, error) {
	var (
		u         models.User
		email     sql.NullString
		perms     string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &email, &perms,
		&u.IsActive, &u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Permissions = splitPermissions(perms)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func joinPermissions(perms []string) string {
	if len(perms) == 0 {
		return models.PermUser
	}
	return strings.Join(perms, ",")
}

func splitPermissions(perms string) []string {
	if perms == "" {
		return nil
	}
	return strings.Split(perms, ",")
}
