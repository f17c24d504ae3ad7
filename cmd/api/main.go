package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"

	"github.com/vmtorres/payables-api/internal/config"
	"github.com/vmtorres/payables-api/internal/database"
	"github.com/vmtorres/payables-api/internal/handlers"
	"github.com/vmtorres/payables-api/internal/jobs"
	"github.com/vmtorres/payables-api/internal/middleware"
	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/services"
	"github.com/vmtorres/payables-api/internal/storage"
	"github.com/vmtorres/payables-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	// Initialize storage for report archives
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage")

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, store, db)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs, cfg)

	// Initialize handlers
	h := handlers.NewHandlers(svcs, store)

	// Setup router
	router := setupRouter(h, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown background worker
	worker.Shutdown()
	logger.Info("Background worker stopped")

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Protected routes (requires authentication)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			// Admin-only routes: the closing lock and destructive
			// ledger operations
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.POST("/closings/close", h.Closing.Close)
				admin.POST("/closings/reopen", h.Closing.Reopen)
				admin.POST("/obligations/:obligation_id/cancel", h.Obligation.Cancel)
				admin.POST("/events/:event_id/reverse", h.Obligation.Reverse)
				admin.GET("/jobs/status", h.Job.Status)
			}

			// Obligations and ledger entries
			protected.GET("/obligations", h.Obligation.Index)
			protected.POST("/obligations", h.Obligation.Create)
			protected.POST("/obligations/schedule", h.Obligation.CreateSchedule)
			protected.GET("/obligations/:obligation_id", h.Obligation.Show)
			protected.GET("/obligations/:obligation_id/events", h.Obligation.Events)
			protected.POST("/obligations/:obligation_id/payments", h.Obligation.Pay)
			protected.POST("/obligations/:obligation_id/adjustments", h.Obligation.Adjust)
			protected.GET("/obligations/:obligation_id/verify", h.Obligation.Verify)
			protected.GET("/obligations/:obligation_id/statement_pdf", h.Obligation.StatementPDF)

			// Closings (viewing open to all authenticated users)
			protected.GET("/closings", h.Closing.Index)
			protected.GET("/closings/pending", h.Closing.Pending)
			protected.GET("/closings/:date", h.Closing.Show)

			// Reports
			protected.GET("/reports/summary", h.Report.Summary)
			protected.GET("/reports/payables_csv", h.Report.PayablesCSV)
			protected.GET("/reports/payables_xlsx", h.Report.PayablesXLSX)
			protected.GET("/reports/overdue_csv", h.Report.OverdueCSV)

			// Audits
			protected.GET("/audits", h.Audit.Index)
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	interval := time.Duration(cfg.ReminderIntervalHours) * time.Hour

	// Warn when a past day with movement was never closed
	worker.ScheduleEveryImmediate(interval, func(ctx context.Context) error {
		pending, err := svcs.Closing.PendingClosure(ctx)
		if err != nil {
			return err
		}
		if pending != nil {
			logger.Warn("[Job] Dia com movimento ainda não fechado",
				"date", pending.Format("2006-01-02"))
		}
		return nil
	})

	// Daily overdue summary
	worker.ScheduleEvery(24*time.Hour, func(ctx context.Context) error {
		overdue, err := svcs.Report.Overdue(ctx)
		if err != nil {
			return err
		}
		if len(overdue) > 0 {
			logger.Info(fmt.Sprintf("[Job] %d obrigações em atraso", len(overdue)))
		}
		return nil
	})

	logger.Info("Scheduled recurring jobs")
}
