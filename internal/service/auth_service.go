package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat_terminal/internal/models"
	"chat_terminal/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes    = 16
	keyBytes     = 32
	pbkdf2Rounds = 4096

	defaultTokenTTL = 24 * time.Hour
)

// Domain errors for auth flows.
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrPermissionDenied   = errors.New("permission denied")
)

// AuthService is the credential store: it owns user accounts and the
// active-token set. Mutations are serialized so two concurrent registrations
// or logins for the same username cannot race past each other; verification
// is a plain read and may run concurrently.
type AuthService struct {
	mu       sync.Mutex
	users    repository.Users
	tokens   repository.Tokens
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(users repository.Users, tokens repository.Tokens, secret []byte, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{users: users, tokens: tokens, secret: secret, tokenTTL: tokenTTL}
}

// Claims defines JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Register creates a new account with the default "user" permission.
// The password is stored as salt$hash, never in the clear.
func (s *AuthService) Register(username, password, email string) error {
	if strings.TrimSpace(username) == "" {
		return errors.New("username is empty")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.users.GetByUsername(username)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrUsernameTaken
	}

	u := &models.User{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Permissions:  []string{models.PermUser},
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.users.Create(u); err != nil {
		return err
	}
	return nil
}

// Login validates credentials and issues a signed, time-boxed token. The
// token is recorded in the active set before being handed out. Multiple
// concurrent sessions per user are allowed.
func (s *AuthService) Login(username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.users.GetByUsername(username)
	if err != nil {
		return "", err
	}
	if u == nil || !u.IsActive {
		return "", ErrInvalidCredentials
	}
	if !verifyPassword(u.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(username, now); err != nil {
		return "", err
	}

	signed, err := s.issueToken(username, now)
	if err != nil {
		return "", fmt.Errorf("sign token for %q: %w", username, err)
	}
	if err := s.tokens.Insert(models.Token{
		Token:     signed,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}); err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks a token's signature, expiry and presence in the active set,
// then resolves it to a live user. An expired token is evicted from the
// active set as a side effect; a second Verify on it fails the same way.
func (s *AuthService) Verify(token string) (*models.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		// Ensure HMAC signing is used
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			if derr := s.tokens.Delete(token); derr != nil {
				return nil, derr
			}
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	// A correctly signed token that is missing from the active set is still
	// rejected: logout and store resets invalidate it.
	active, err := s.tokens.Get(token)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrInvalidToken
	}

	u, err := s.users.GetByUsername(claims.Username)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, ErrInvalidToken
	}
	return u, nil
}

// Logout removes the token from the active set. Idempotent on a missing token.
func (s *AuthService) Logout(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Delete(token)
}

// ListUsers returns all accounts. The actor must carry the admin permission.
func (s *AuthService) ListUsers(actor *models.User) ([]models.User, error) {
	if !actor.HasPermission(models.PermAdmin) {
		return nil, ErrPermissionDenied
	}
	return s.users.List()
}

// DeleteUser removes an account and revokes all of its outstanding tokens.
// The actor must carry the admin permission.
func (s *AuthService) DeleteUser(actor *models.User, username string) error {
	if !actor.HasPermission(models.PermAdmin) {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.users.GetByUsername(username)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if err := s.users.Delete(username); err != nil {
		return err
	}
	return s.tokens.DeleteForUser(username)
}

// EnsureDefaultAdmin seeds an initial admin account when the user table is
// empty, so a fresh install is administrable out of the box.
func (s *AuthService) EnsureDefaultAdmin(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.users.Count()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	_, err = s.users.Create(&models.User{
		Username:     username,
		PasswordHash: hash,
		Permissions:  []string{models.PermAdmin},
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	})
	return err
}

// helper: issue a signed JWT for a user
func (s *AuthService) issueToken(username string, now time.Time) (string, error) {
	// A unique token ID keeps two logins within the same second from
	// minting the same JWT string.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: username,
	})
	return token.SignedString(s.secret)
}

// helper: derive a salted hash in "salt$hash" form (hex-encoded).
func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, keyBytes, sha256.New)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

// helper: recompute the hash with the stored salt and compare in constant time.
func verifyPassword(stored, password string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, keyBytes, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
