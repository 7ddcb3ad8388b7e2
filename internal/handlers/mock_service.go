package handlers

import (
	"net/http"
	"testing"

	"chat_terminal/internal/dispatcher"
	"chat_terminal/internal/hub"
	"chat_terminal/internal/models"
	"chat_terminal/internal/service"
	"chat_terminal/internal/storage"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	registerErr error
	loginToken  string
	loginErr    error
	verifyUser  *models.User
	verifyErr   error
	logoutErr   error
	listResp    []models.User
	listErr     error
	deleteErr   error

	lastRegisterUsername string
	lastRegisterEmail    string
	lastLoginUsername    string
	lastVerifyToken      string
	lastLogoutToken      string
	lastDeleteUsername   string
	lastListActor        *models.User
	lastDeleteActor      *models.User
}

func (m *mockAuth) Register(username, password, email string) error {
	m.lastRegisterUsername = username
	m.lastRegisterEmail = email
	return m.registerErr
}

func (m *mockAuth) Login(username, password string) (string, error) {
	m.lastLoginUsername = username
	return m.loginToken, m.loginErr
}

func (m *mockAuth) Verify(token string) (*models.User, error) {
	m.lastVerifyToken = token
	return m.verifyUser, m.verifyErr
}

func (m *mockAuth) Logout(token string) error {
	m.lastLogoutToken = token
	return m.logoutErr
}

func (m *mockAuth) ListUsers(actor *models.User) ([]models.User, error) {
	m.lastListActor = actor
	return m.listResp, m.listErr
}

func (m *mockAuth) DeleteUser(actor *models.User, username string) error {
	m.lastDeleteActor = actor
	m.lastDeleteUsername = username
	return m.deleteErr
}

func (m *mockAuth) EnsureDefaultAdmin(username, password string) error { return nil }

var _ service.Authorization = (*mockAuth)(nil)

// ---- Shared Test Helpers ----

func newTestRouter(t *testing.T, auth service.Authorization) (*gin.Engine, *storage.FileStore) {
	t.Helper()
	s := &service.Service{Authorization: auth}
	registry := hub.NewRegistry(nil)
	disp := dispatcher.New(auth, registry, nil, nil, nil)
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h := NewHandler(s, registry, disp, store, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes(), store
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
