package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombar/litmatrix/internal/api"
	"github.com/zombar/litmatrix/internal/artifacts"
	"github.com/zombar/litmatrix/internal/config"
	"github.com/zombar/litmatrix/internal/database"
	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/llm"
	"github.com/zombar/litmatrix/internal/metrics"
	"github.com/zombar/litmatrix/internal/queue"
	"github.com/zombar/litmatrix/internal/session"
	"github.com/zombar/litmatrix/internal/tracing"
	"github.com/zombar/litmatrix/pkg/logging"
)

const serviceName = "litmatrix"

func main() {
	var (
		configPath = flag.String("config", getEnv("LITMATRIX_CONFIG", ""), "YAML config file (env: LITMATRIX_CONFIG)")
		port       = flag.String("port", "", "Server port, overrides config (env: PORT)")
		provider   = flag.String("provider", "", "Inference provider: deepseek, ollama or gemini (env: LLM_PROVIDER)")
		dsn        = flag.String("db", "", "SQLite path or PostgreSQL URL (env: DB_DSN)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *provider != "" {
		cfg.LLM.Provider = *provider
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	logger.Info("litmatrix service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer(serviceName)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Initialize database
	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "dialect", database.DialectFor(cfg.Database.DSN))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	businessMetrics := metrics.NewBusinessMetrics(serviceName)
	dbMetrics := metrics.NewDatabaseMetrics(serviceName)

	// Initialize inference client
	llmClient, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLMTimeout(),
	}, businessMetrics)
	if err != nil {
		logger.Error("failed to initialize inference client", "error", err, "provider", cfg.LLM.Provider)
		os.Exit(1)
	}

	embeddedKey := cfg.LLM.EmbeddedKey
	if embeddedKey == "" {
		embeddedKey = llm.EmbeddedKey
	}

	exporter := export.NewExporter(&export.RodRasterizer{
		ControlURL: cfg.Export.ChromeControlURL,
		Bin:        cfg.Export.ChromeBin,
		Width:      cfg.Export.Width,
		Timeout:    cfg.ExportTimeout(),
	}, businessMetrics)

	sessions := session.NewManager(db, session.Deps{
		Inferer:     llmClient,
		Exporter:    exporter,
		EmbeddedKey: embeddedKey,
		Metrics:     businessMetrics,
	})

	opts := api.Options{CORSOrigins: cfg.Server.CORSOrigins}

	var worker *queue.Worker
	if cfg.QueueEnabled() {
		storage, err := artifacts.New(artifacts.Config{
			Type:         artifacts.Type(cfg.Storage.Type),
			LocalPath:    cfg.Storage.LocalPath,
			S3Bucket:     cfg.Storage.S3Bucket,
			S3Region:     cfg.Storage.S3Region,
			S3Endpoint:   cfg.Storage.S3Endpoint,
			AWSAccessKey: cfg.Storage.AWSAccessKey,
			AWSSecretKey: cfg.Storage.AWSSecretKey,
		})
		if err != nil {
			logger.Error("failed to initialize artifact storage", "error", err, "type", cfg.Storage.Type)
			os.Exit(1)
		}

		queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.Queue.RedisAddr})
		defer queueClient.Close()

		worker = queue.NewWorker(queue.WorkerConfig{
			RedisAddr:   cfg.Queue.RedisAddr,
			Concurrency: cfg.Queue.Concurrency,
		}, queue.NewProcessor(sessions, db, storage))

		opts.Queue = queueClient
		opts.Jobs = db
		opts.Storage = storage
		logger.Info("async exports enabled", "redis_addr", cfg.Queue.RedisAddr, "storage", cfg.Storage.Type)
	} else {
		logger.Info("async exports disabled, exports render in the request")
	}

	// Wrap handler with middleware chain: HTTP logging -> tracing -> handlers
	handler := logging.HTTPLoggingMiddleware(logger)(
		tracing.HTTPMiddleware(serviceName)(api.NewHandler(sessions, opts)),
	)

	// Extended timeouts for inference and export
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout() + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("litmatrix service starting",
			"port", cfg.Server.Port,
			"database", database.DialectFor(cfg.Database.DSN),
			"provider", llmClient.Provider(),
			"model", cfg.LLM.Model,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				dbMetrics.UpdateDBStats(db.Conn())
			}
		}
	})

	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
