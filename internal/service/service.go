package service

import (
	"time"

	"chat_terminal/internal/models"
	"chat_terminal/internal/repository"
)

// Authorization is the credential store contract consumed by the dispatcher
// and the HTTP layer.
type Authorization interface {
	Register(username, password, email string) error
	Login(username, password string) (string, error)
	Verify(token string) (*models.User, error)
	Logout(token string) error
	ListUsers(actor *models.User) ([]models.User, error)
	DeleteUser(actor *models.User, username string) error
	EnsureDefaultAdmin(username, password string) error
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Authorization
}

// NewService wires the repository layer into concrete services.
func NewService(repos *repository.Repository, jwtSecret []byte, tokenTTL time.Duration) *Service {
	return &Service{
		Authorization: NewAuthService(repos.Users, repos.Tokens, jwtSecret, tokenTTL),
	}
}
