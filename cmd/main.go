package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_terminal/internal/dispatcher"
	"chat_terminal/internal/executor"
	"chat_terminal/internal/handlers"
	"chat_terminal/internal/hub"
	"chat_terminal/internal/logger"
	"chat_terminal/internal/repository"
	"chat_terminal/internal/repository/db"
	"chat_terminal/internal/server"
	"chat_terminal/internal/service"
	"chat_terminal/internal/storage"

	"github.com/spf13/viper"
)

const (
	defaultDBPath      = "chat.db"
	defaultUploadsDir  = "uploads"
	defaultExecTimeout = 20 * time.Second
	defaultTokenTTL    = 24 * time.Hour
	bootstrapAdmin     = "admin"
)

func main() {
	// load config.yml first so the logger level can come from it
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log_level"))

	// open DB
	database, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := database.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(database)
	services := service.NewService(repos, jwtSecret(log), tokenTTL())

	bootstrapPass := viper.GetString("auth.bootstrap_password")
	if bootstrapPass == "" {
		bootstrapPass = bootstrapAdmin
	}
	if err := services.EnsureDefaultAdmin(bootstrapAdmin, bootstrapPass); err != nil {
		log.Fatalw("failed to seed bootstrap admin", "err", err)
	}

	store, err := storage.NewFileStore(uploadsDir())
	if err != nil {
		log.Fatalw("failed to init file store", "err", err)
	}

	registry := hub.NewRegistry(log)
	engine := executor.New(execTimeout(), log)
	disp := dispatcher.New(services, registry, engine, store, log)
	apiHandler := handlers.NewHandler(services, registry, disp, store, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", defaultDBPath)
		dbPath = defaultDBPath
	}
	return db.InitDB(dbPath)
}

// jwtSecret reads the signing key from config, generating an ephemeral one
// when unset. An ephemeral key invalidates all tokens on restart.
func jwtSecret(log *logger.Logger) []byte {
	if s := viper.GetString("auth.jwt_secret"); s != "" {
		return []byte(s)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalw("failed to generate jwt secret", "err", err)
	}
	log.Warnw("auth.jwt_secret not set; using ephemeral key, sessions will not survive restart")
	return []byte(hex.EncodeToString(buf))
}

func tokenTTL() time.Duration {
	if d := viper.GetDuration("auth.token_ttl"); d > 0 {
		return d
	}
	return defaultTokenTTL
}

func execTimeout() time.Duration {
	if d := viper.GetDuration("exec.timeout"); d > 0 {
		return d
	}
	return defaultExecTimeout
}

func uploadsDir() string {
	if dir := viper.GetString("uploads.dir"); dir != "" {
		return dir
	}
	return defaultUploadsDir
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
