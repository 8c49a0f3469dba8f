// Package main is the entry point for the document QA service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/net/netutil"

	"docqa/internal/adapter/httpapi"
	"docqa/internal/di"
	"docqa/internal/infra"
	"docqa/internal/infra/config"
	"docqa/internal/infra/logger"
	"docqa/internal/infra/telemetry"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize telemetry before the logger; the OTLP log bridge reads
	// the global provider.
	shutdownTelemetry, err := telemetry.InitProvider(context.Background(), telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}

	// 3. Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Telemetry.Enabled)
	slog.SetDefault(log)

	// 4. Initialize DB (postgres backend only)
	var pool *pgxpool.Pool
	if cfg.Storage.Backend == "postgres" {
		pool, err = infra.NewPostgresPool(context.Background(), cfg.DB.DSN(), cfg.DB.MaxConns, cfg.DB.MinConns)
		if err != nil {
			log.Error("failed to connect to db", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	// 5. Wire application components
	components, err := di.NewApplicationComponents(context.Background(), cfg, pool, log)
	if err != nil {
		log.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	// 6. Start background workers
	components.IngestWorker.Start()
	defer func() {
		log.Info("Stopping ingest workers...")
		components.IngestWorker.Stop()
	}()
	components.Janitor.Start()
	defer func() {
		log.Info("Stopping janitor...")
		components.Janitor.Stop()
	}()

	// 7. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if cfg.Telemetry.Enabled {
		e.Use(otelecho.Middleware(cfg.Telemetry.ServiceName))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/v1/healthz" || path == "/v1/readyz"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				log.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				log.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.BodyLimit("16M"))

	// 8. Validate requests against the API contract
	validator, err := httpapi.NewOpenAPIValidator()
	if err != nil {
		log.Error("failed to load API contract", "error", err)
		os.Exit(1)
	}
	e.Use(validator)

	// 9. Register handlers
	handler := httpapi.NewHandler(components.Registry, components.IngestUsecase, components.AskUsecase, components.Ready, log)
	handler.RegisterRoutes(e)

	// 10. Bound accepted connections
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}
	e.Listener = netutil.LimitListener(ln, cfg.Server.MaxConnections)

	// 11. Start server
	go func() {
		log.Info("Starting server",
			"addr", addr,
			"storage_backend", cfg.Storage.Backend,
			"max_connections", cfg.Server.MaxConnections)
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped unexpectedly", "error", err)
		}
	}()

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("forced server shutdown", "error", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Error("telemetry shutdown failed", "error", err)
	}
}
