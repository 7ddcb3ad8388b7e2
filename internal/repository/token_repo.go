package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"chat_terminal/internal/models"
)

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Ensure implementation of Tokens interface at compile time.
var _ Tokens = (*TokenRepository)(nil)

const (
	insertTokenSQL         = `INSERT INTO tokens (token, username, issued_at, expires_at) VALUES (?, ?, ?, ?)`
	selectTokenSQL         = `SELECT token, username, issued_at, expires_at FROM tokens WHERE token = ?`
	deleteTokenSQL         = `DELETE FROM tokens WHERE token = ?`
	deleteTokensForUserSQL = `DELETE FROM tokens WHERE username = ?`
)

// Insert records a freshly issued token in the active set.
func (r *TokenRepository) Insert(t models.Token) error {
	if _, err := r.db.Exec(insertTokenSQL, t.Token, t.Username, t.IssuedAt, t.ExpiresAt); err != nil {
		return fmt.Errorf("insert token for %q: %w", t.Username, err)
	}
	return nil
}

// Get fetches an active token. Returns (nil, nil) if not found.
func (r *TokenRepository) Get(token string) (*models.Token, error) {
	var t models.Token
	err := r.db.QueryRow(selectTokenSQL, token).Scan(&t.Token, &t.Username, &t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select token: %w", err)
	}
	return &t, nil
}

// Delete evicts a token from the active set; deleting an absent token is a no-op.
func (r *TokenRepository) Delete(token string) error {
	if _, err := r.db.Exec(deleteTokenSQL, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// DeleteForUser revokes every outstanding token owned by username.
func (r *TokenRepository) DeleteForUser(username string) error {
	if _, err := r.db.Exec(deleteTokensForUserSQL, username); err != nil {
		return fmt.Errorf("delete tokens for %q: %w", username, err)
	}
	return nil
}
