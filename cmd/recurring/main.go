package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cadenza/internal/amqp"
	"cadenza/internal/cli"
	"cadenza/internal/config"
	"cadenza/internal/log"
	"cadenza/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)

	// watch runs until a signal arrives; the other commands finish on their own.
	ctx, _ := cli.GracefulShutdown(logger, 10*time.Second, nil)
	os.Exit(execute(ctx, logger, cfg, os.Args[1], os.Args[2:]))
}

func execute(ctx context.Context, logger *log.Logger, cfg *config.Config, command string, args []string) int {
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	collaborator, err := cli.NewCollaborator(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize pattern collaborator",
			log.FieldErrorType, log.ErrorTypeConfiguration,
			log.FieldError, err)
		return 1
	}

	store, err := cli.NewCandidateStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize candidate store", log.FieldError, err)
		return 1
	}
	defer store.Close()

	events, closeEvents := cli.NewEventPublisher(logger, cfg)
	defer closeEvents()

	a := &app{
		registry:     services.NewRegistry(repo, events, logger),
		detector:     services.NewDetector(repo, collaborator, store, services.DetectorConfig{Lookback: cfg.DetectionLookback, Timeout: cfg.DetectionTimeout}, logger),
		materializer: services.NewMaterializer(repo, store, events, logger),
		membership:   services.NewMembershipManager(repo, events, logger),
		// A process-local store starts empty, so apply must detect first.
		detectBeforeApply: cfg.CandidateStore == config.StoreMemory,
		logger:            logger,
		out:               os.Stdout,
		now:               time.Now,
	}
	if client, ok := events.(*amqp.Client); ok {
		a.consumer = client
		a.queue = cfg.AMQPQueue
	}

	if err := a.run(ctx, command, args); err != nil {
		logger.Error("Command failed", log.FieldOperation, command, log.FieldError, err)
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
