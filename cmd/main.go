package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eduportal/integrity/internal/api"
	"github.com/eduportal/integrity/internal/config"
	"github.com/eduportal/integrity/internal/configs/env"
	"github.com/eduportal/integrity/internal/infra/mongo"
	redisInfra "github.com/eduportal/integrity/internal/infra/redis"
	"github.com/eduportal/integrity/internal/logger"
	"github.com/eduportal/integrity/internal/metrics"
	"github.com/eduportal/integrity/internal/notes"
	"github.com/eduportal/integrity/internal/plagiarism"
	"github.com/eduportal/integrity/internal/proctoring"
	"github.com/eduportal/integrity/internal/repository"
	"github.com/eduportal/integrity/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel)
	log.Info().Msg("Starting integrity service")

	metrics.InitPrometheus()
	metricsServer := api.StartServer("metrics", api.MetricsHandler(), cfg.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	notesRepo := repository.NewNotesRepository(mongoRepo)
	reportsRepo := repository.NewReportsRepository(mongoRepo)
	proctoringRepo := repository.NewProctoringRepository(mongoRepo)

	var notesSource notes.Source = notesRepo
	if cfg.NotesSource == config.NotesSourceSupabase {
		notesSource = notes.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseKey)
	}
	log.Info().Str("source", cfg.NotesSource).Msg("Notes source selected")

	workerPool := plagiarism.NewWorkerPool(ctx)
	defer workerPool.Close()

	statusStore := plagiarism.NewStatusStore(redisClient.Client)
	checker := plagiarism.NewChecker(notesSource, reportsRepo, statusStore, workerPool)

	signals := stream.NewSignalQueue(redisClient.Client, cfg.RedisSignalPrefix)
	registry := proctoring.NewRegistry(ctx, proctoring.RegistryDeps{
		Warnings:     proctoringRepo,
		Sessions:     proctoringRepo,
		Status:       statusStore,
		Locks:        stream.NewLockPublisher(redisClient.Client, cfg.RedisLockStream),
		Sources:      signals.SourceFor,
		PollInterval: cfg.ProctorPollInterval,
	})

	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.RedisSubmissionStream,
		cfg.RedisConsumerGroup,
		consumerName,
		checker,
		retryHandler,
		cfg.StreamRetentionDuration,
	)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Submission consumer stopped")
		}
	}()

	handler := api.NewHandler(api.HandlerDeps{
		Checker:             checker,
		Queue:               stream.NewSubmissionPublisher(redisClient.Client, cfg.RedisSubmissionStream),
		Notes:               notesRepo,
		Reports:             reportsRepo,
		Status:              statusStore,
		Sessions:            registry,
		Warnings:            proctoringRepo,
		MaxConcurrentChecks: cfg.MaxConcurrentChecks,
		CheckTimeout:        cfg.CheckTimeout,
	})
	router := api.SetupRoutes(ctx, api.RouteConfig{
		JWTSecret:    cfg.JWTSecret,
		RateLimitRPS: cfg.RateLimitRPS,
	}, handler)
	srv := api.StartServer("http", router, cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}
	handler.Wait()

	registry.Close()
	cancel()
	<-consumerDone

	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}
