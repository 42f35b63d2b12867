// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/switchyard-ai/switchyard/pkg/logging"
	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/llm"
	"github.com/switchyard-ai/switchyard/services/orchestrator/middleware"
	"github.com/switchyard-ai/switchyard/services/orchestrator/observability"
	"github.com/switchyard-ai/switchyard/services/orchestrator/routes"
	"github.com/switchyard-ai/switchyard/services/selector"
	storagebadger "github.com/switchyard-ai/switchyard/services/storage/badger"
)

const serviceName = "switchyard-orchestrator"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the routing engine HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// initTracer wires OTLP trace export over gRPC and installs the
// global tracer provider. The returned cleanup flushes the exporter
// with a 5 second budget.
func initTracer(logger *logging.Logger) (func(context.Context), error) {
	ctx := context.Background()

	endpoint := config.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "switchyard-otel-collector:4317"
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown OTLP exporter", "error", err.Error())
		}
	}, nil
}

func logLevel(name string) logging.Level {
	switch name {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func openStorage(logger *logging.Logger) (*storagebadger.DB, error) {
	if config.Storage.InMemory {
		logger.Warn("running with in-memory storage, experiments will not survive restarts")
		return storagebadger.OpenInMemory()
	}

	dataDir := config.Storage.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".switchyard", "data")
	}

	cfg := storagebadger.DefaultConfig()
	cfg.Path = dataDir
	cfg.Logger = logger.Slog()
	return storagebadger.Open(cfg)
}

func runServe(ctx context.Context) error {
	logger := logging.New(logging.Config{
		Level:   logLevel(config.Logging.Level),
		LogDir:  config.Logging.Dir,
		Service: serviceName,
		JSON:    config.Logging.JSON,
	})
	defer logger.Close()

	observability.InitMetrics()

	var cleanup func(context.Context)
	if config.Telemetry.Enabled {
		var err error
		cleanup, err = initTracer(logger)
		if err != nil {
			return fmt.Errorf("setup OTLP tracer: %w", err)
		}
		defer cleanup(context.Background())
	}

	db, err := openStorage(logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	runner := experiments.NewRunner(experiments.NewBadgerStorage(db), logger)
	if err := runner.LoadExperiments(ctx); err != nil {
		return err
	}

	registry, err := llm.NewRegistryFromEnv()
	if err != nil {
		return fmt.Errorf("configure LLM backends: %w", err)
	}
	logger.Info("LLM backends registered", "backends", registry.Names())

	sel := selector.NewModelSelector(runner)
	for _, name := range registry.Names() {
		// Backends outside the built-in capability table get a
		// neutral profile; the bandit learns the rest.
		sel.RegisterModel(selector.ModelCapabilities{
			Name:            name,
			CostPer1KTokens: 0.01,
			AvgLatencyMs:    2000,
			MaxTokens:       4096,
			QualityScore:    0.7,
			CreativityScore: 0.7,
			ReasoningScore:  0.7,
			CodeScore:       0.7,
		})
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: config.Server.RequestsPerSecond,
		Burst:             config.Server.Burst,
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.DefaultMetrics.Middleware())
	engine.Use(limiter.Middleware())

	routes.SetupRoutes(engine, routes.Dependencies{
		Runner:   runner,
		Selector: sel,
		Registry: registry,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("server starting", "port", config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Periodic snapshots keep results queryable after restarts.
	group.Go(func() error {
		ticker := time.NewTicker(config.Experiments.ResultsSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runner.SaveResults(ctx)
			}
		}
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runner.SaveResults(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
