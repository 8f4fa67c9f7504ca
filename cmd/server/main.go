package main

import (
	"database/sql"
	"flag"
	"log"
	"net/http"

	_ "github.com/lib/pq"

	httpapi "github.com/MLeprich/mitgliederverwaltung/internal/api/http"
	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository/postgres"
	"github.com/MLeprich/mitgliederverwaltung/internal/security"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"
	"github.com/MLeprich/mitgliederverwaltung/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Mitgliederverwaltung server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	// Initialize Database
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize Photo Storage
	photoStore, err := storage.NewLocalPhotoStore(cfg.Storage.PhotoDir)
	if err != nil {
		logger.Error("Failed to initialize photo storage", "error", err)
		log.Fatalf("Failed to initialize photo storage: %v", err)
	}
	logger.Info("Photo storage initialized", "dir", cfg.Storage.PhotoDir)

	// Initialize Services
	policy := domain.AgePolicy{Min: cfg.Policy.MinAge, Max: cfg.Policy.MaxAge}
	memberSvc := service.NewMemberService(store, photoStore, policy, cfg.Policy.ExpiryWarnDays)
	importSvc := service.NewImportService(store, memberSvc)
	exportSvc := service.NewExportService(store)

	// Build HTTP router
	router := httpapi.NewRouter(httpapi.RouterDeps{
		Config:   cfg,
		Tokens:   tokenManager,
		Members:  memberSvc,
		Importer: importSvc,
		Exporter: exportSvc,
	})

	logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
	if err := http.ListenAndServe(cfg.GetServerAddress(), router); err != nil {
		logger.Error("HTTP server error", "error", err)
		log.Fatalf("Failed to serve: %v", err)
	}
}
