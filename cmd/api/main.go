package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/caseforge/engine/internal/api"
	"github.com/caseforge/engine/internal/api/handlers"
	"github.com/caseforge/engine/internal/generator"
	"github.com/caseforge/engine/internal/repository"
	"github.com/caseforge/engine/internal/services"
	"github.com/caseforge/engine/pkg/config"
	"github.com/caseforge/engine/pkg/database"
	"github.com/caseforge/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting caseforge engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("database connected")

	userRepo := repository.NewUserRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	projectRepo := repository.NewProjectRepository(db)

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	var asynqClient *asynq.Client
	if cfg.RedisAddr != "" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer asynqClient.Close()
	}

	fetcher := generator.NewJiraFetcher(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraAPIToken)
	contentGen := generator.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	registry := services.NewProjectRegistry(projectRepo, genRepo)
	genSvc := services.NewGenerationService(db, genRepo, registry, fetcher, contentGen, asynqClient)
	authSvc := services.NewAuthService(userRepo, jwtSecret)

	router := api.NewRouter(api.Dependencies{
		HMACSecret:         jwtSecret,
		AuthHandler:        handlers.NewAuthHandler(authSvc),
		GenerationsHandler: handlers.NewGenerationsHandler(genSvc),
		ProjectsHandler:    handlers.NewProjectsHandler(registry),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // generation requests block on the LLM call
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
