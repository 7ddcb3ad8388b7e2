package handlers

import (
	"net/http"

	"chat_terminal/internal/dispatcher"
	"chat_terminal/internal/hub"
	"chat_terminal/internal/logger"
	"chat_terminal/internal/service"
	"chat_terminal/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler wires the HTTP layer to services, the connection registry, the
// command dispatcher and the file store.
type Handler struct {
	services   *service.Service
	registry   *hub.Registry
	dispatcher *dispatcher.Dispatcher
	store      *storage.FileStore
	log        *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, registry *hub.Registry, disp *dispatcher.Dispatcher, store *storage.FileStore, log *logger.Logger) *Handler {
	return &Handler{services: services, registry: registry, dispatcher: disp, store: store, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// File transfer endpoints
	h.registerFileRoutes(router)

	// Versioned admin API (protected)
	h.registerAPIRoutes(router)

	// Chat protocol rides the WebSocket upgrade on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
		auth.POST("/sign-out", h.signOut)
	}
}

func (h *Handler) registerFileRoutes(r *gin.Engine) {
	r.POST("/upload", h.uploadFile)
	r.GET("/files", h.listFiles)
	r.GET("/files/:name", h.downloadFile)
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userMiddleware)
	{
		api.GET("/users", h.listUsers)
		api.DELETE("/users/:username", h.deleteUser)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     "chat-terminal-server",
		"connections": h.registry.Len(),
	})
}
