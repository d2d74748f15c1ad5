package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/atelierly/backend/internal/auth"
	"github.com/atelierly/backend/internal/config"
	"github.com/atelierly/backend/internal/handlers"
	"github.com/atelierly/backend/internal/middleware"
	"github.com/atelierly/backend/internal/notify"
	"github.com/atelierly/backend/internal/payments"
	"github.com/atelierly/backend/internal/repository"
	"github.com/atelierly/backend/internal/router"
	"github.com/atelierly/backend/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	transactionRepo := repository.NewTransactionRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	submissionRepo := repository.NewSubmissionRepo(pool)
	refundRepo := repository.NewRefundRequestRepo(pool)

	// Notification delivery worker
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewWorker(cfg.NotifySinkURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	enqueueNotification := func(ctx context.Context, tx pgx.Tx, args notify.NotificationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}

	// Services
	accountSvc := services.NewAccountService(pool, accountRepo, transactionRepo)
	engine := services.NewEscrowEngine(pool, accountSvc, jobRepo, submissionRepo, refundRepo, enqueueNotification, logger)

	briefValidator, err := services.NewBriefValidator(cfg.SchemaDir)
	if err != nil {
		slog.Error("Brief schema validator init failed", "error", err)
		os.Exit(1)
	}

	paymentsClient := payments.NewClient(cfg.PaymentsAPIBaseURL, cfg.PaymentsAPIKey)

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// Handlers
	accountHandler := handlers.NewAccountHandler(accountRepo, transactionRepo, accountSvc, logger)
	jobHandler := handlers.NewJobHandler(jobRepo, submissionRepo, briefValidator, logger)
	escrowHandler := handlers.NewEscrowHandler(engine, refundRepo, logger)
	topupHandler := handlers.NewTopupHandler(paymentsClient, accountSvc, cfg.PaymentsWebhookSecret, logger)

	apiRouter := router.New(router.Deps{
		Auth:         authHandler,
		Account:      accountHandler,
		Jobs:         jobHandler,
		Escrow:       escrowHandler,
		Topups:       topupHandler,
		Authenticate: middleware.JWTAuth(authSvc, accountRepo),
		SpendLimit:   middleware.SpendLimit(transactionRepo.DailyEscrowSpend),
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOriginList(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (delivers notifications)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
