package repository

import (
	"database/sql"
	"time"

	"chat_terminal/internal/models"
)

// Users is the persistent user table keyed by username.
type Users interface {
	Create(u *models.User) (int64, error)
	GetByUsername(username string) (*models.User, error)
	List() ([]models.User, error)
	Count() (int, error)
	UpdateLastLogin(username string, t time.Time) error
	Delete(username string) error
}

// Tokens is the persistent active-token table.
type Tokens interface {
	Insert(t models.Token) error
	Get(token string) (*models.Token, error)
	Delete(token string) error
	DeleteForUser(username string) error
}

type Repository struct {
	Users  Users
	Tokens Tokens
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Users:  NewUserRepository(db),
		Tokens: NewTokenRepository(db),
	}
}
