package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerline/be-workflow/internal/client"
	"github.com/ledgerline/be-workflow/internal/config"
	"github.com/ledgerline/be-workflow/internal/database"
	"github.com/ledgerline/be-workflow/internal/handler"
	"github.com/ledgerline/be-workflow/internal/jobs"
	"github.com/ledgerline/be-workflow/internal/logger"
	"github.com/ledgerline/be-workflow/internal/repository"
	"github.com/ledgerline/be-workflow/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting workflow service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Connect to NATS for notifications; an empty URL disables publishing
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to NATS; notifications disabled")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	} else {
		log.Warn().Msg("NATS_URL not set; notifications disabled")
	}
	notifier := client.NewNotifier(nc, log.Logger)

	// Initialize repositories
	auditRepo := repository.NewAuditRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	documentRepo := repository.NewDocumentRepository(db, auditRepo)
	entityRepo := repository.NewEntityRepository(db)

	// Initialize services
	auditService := service.NewAuditService(auditRepo, notifier,
		cfg.Workflow.OwnerUserIDs, cfg.Workflow.SuspiciousThreshold, cfg.Workflow.SuspiciousWindow, log)
	lifecycleService := service.NewLifecycleService(documentRepo, log)
	registry := service.NewDefaultRegistry(entityRepo, documentRepo)
	approvalService := service.NewApprovalService(approvalRepo, auditService, registry,
		cfg.Workflow.ApprovalTTL, log)

	// Metrics registry
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	sweepMetrics := jobs.NewMetrics()
	if err := sweepMetrics.Register(promRegistry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sweeper metrics")
	}

	// Start the sweeper
	sweeper := jobs.NewSweeper(approvalService, documentRepo, notifier, sweepMetrics,
		cfg.Workflow.SweepInterval, cfg.Workflow.ReminderInterval, log)
	sweeper.Start(ctx)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(lifecycleService, approvalService, auditService, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/v1/approvals", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListApprovals(w, r)
		case http.MethodPost:
			httpHandler.CreateApproval(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/approvals/get", httpHandler.GetApproval)
	mux.HandleFunc("/api/v1/approvals/decide", httpHandler.DecideApproval)
	mux.HandleFunc("/api/v1/documents/transition", httpHandler.TransitionDocument)
	mux.HandleFunc("/api/v1/audit/search", httpHandler.SearchAudit)
	mux.HandleFunc("/api/v1/audit/stats", httpHandler.AuditStats)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	sweeper.Wait()

	log.Info().Msg("Server stopped")
}
