package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/MLeprich/mitgliederverwaltung/internal/cardexport"
	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/jobs"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository/postgres"
	"github.com/MLeprich/mitgliederverwaltung/internal/scheduler"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"
	"github.com/MLeprich/mitgliederverwaltung/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	schedule := flag.Bool("schedule", false, "Keep running and execute jobs on their cron schedule")
	runOnce := flag.String("run-once", "rebuild-card-export", "Job to run once and exit ('rebuild-card-export', 'send-expiry-reminders')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting card export runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
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

	// Initialize Photo Storage
	photoStore, err := storage.NewLocalPhotoStore(cfg.Storage.PhotoDir)
	if err != nil {
		logger.Error("Failed to initialize photo storage", "error", err)
		log.Fatalf("Failed to initialize photo storage: %v", err)
	}

	// Initialize Services
	exporter := cardexport.NewExporter(store, photoStore, cfg.Export)
	emailService := service.NewEmailService(cfg.SMTP)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, exporter, emailService, cfg)

	if !*schedule {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Card export scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down card export scheduler...")
	cronScheduler.Stop()
	logger.Info("Card export scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "rebuild-card-export":
		jobRunner.RebuildCardExport()
	case "send-expiry-reminders":
		jobRunner.SendExpiryReminders()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - rebuild-card-export\n")
		fmt.Printf("  - send-expiry-reminders\n")
		os.Exit(1)
	}
}
