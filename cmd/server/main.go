package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"nexchat/domain/event"
	grpcserver "nexchat/infrastructure/grpc/server"
	httpserver "nexchat/infrastructure/http/server"
	"nexchat/infrastructure/session"
	"nexchat/infrastructure/storage"
	"nexchat/internal"
	"nexchat/observability"
	"nexchat/runtime"
	"nexchat/runtime/workers"
	"nexchat/services"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every deferred close (badger, bluge) run.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment alone is enough.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, endpoint, MessageMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository := storage.NewMessageRepository(db, logger)
	defer func() {
		if err := messageRepository.Close(); err != nil {
			logger.Warn("Unable to release message sequences", "error", err)
		}
	}()
	searchIndex := storage.NewSearchIndex(blugeWriter, logger)

	// 3. Supervision, registry, fan-out & telemetry
	telemetryChan := make(chan event.Event, config.BufferSize)
	sup := workers.NewSupervisor(logger, telemetryChan, config.RestartInterval)
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(logger, registry, config.DeliveryTimeout, telemetryChan)

	orchestrator := runtime.NewOrchestrator(logger, sup, registry, broadcaster,
		messageRepository, searchIndex, telemetryChan,
		runtime.OrchestratorConfig{
			BufferSize:          config.BufferSize,
			RoomBufferSize:      config.RoomBufferSize,
			RoomIdleTimeout:     config.RoomIdleTimeout,
			SinkTimeout:         config.SinkTimeout,
			MetricInterval:      config.MetricInterval,
			EnableModeration:    config.EnableModeration,
			CharReplacement:     charReplacement,
			CensoredDir:         config.CensoredDir,
			HistoryDefaultLimit: config.HistoryDefaultLimit,
			HistoryMaxLimit:     config.HistoryMaxLimit,
		})

	counter := event.NewCounter()
	capacityHandler := event.NewChannelCapacityHandler(logger, config.LowCapacityThreshold)
	censoredHandler := event.NewCensoredHandler(logger, counter)
	monitoring := observability.NewMonitoringManager(logger, counter, capacityHandler, censoredHandler, registry)
	orchestrator.AddHandlers(
		capacityHandler,
		event.NewWorkerRestartedAfterPanicHandler(logger, counter),
		censoredHandler,
		event.NewDeliveryHandler(logger, counter, config.LatencyThreshold),
		event.NewProcessTrackerHandler(logger),
		monitoring,
	)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	// Every WebSocket session derives from it, so they end as soon as a signal arrives.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the Engine (room actors, fan-out, telemetry)
	logger.Info("Starting orchestrator...")
	if err := orchestrator.Start(ctx); err != nil {
		return exitRuntime, fmt.Errorf("orchestrator error: %w", err)
	}

	errChan := make(chan error, 2)

	// 6. HTTP & WebSocket
	chatService := services.NewChatService(logger, orchestrator)
	chatServer := httpserver.NewChatServer(logger, chatService, monitoring, httpserver.Config{
		AllowedOrigins:      config.Origins(),
		BufferSize:          config.WSBufferSize,
		HistoryDefaultLimit: config.HistoryDefaultLimit,
		HistoryMaxLimit:     config.HistoryMaxLimit,
		MaxContentLength:    config.MaxContentLength,
		JWTSecret:           []byte(config.AuthJWTSecret),
		Session: session.Config{
			WriteWait:            config.WriteWait,
			PongWait:             config.PongWait,
			MaxMessageSize:       config.MaxMessageSize,
			ConnectionBufferSize: config.ConnectionBufferSize,
			NotifyTimeout:        config.DeliveryTimeout,
		},
	})
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := httpserver.NewHTTPServer(ctx, address, chatServer.Routes())
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC admin (health + reflection)
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		_ = httpServer.Close()
		orchestrator.Stop()
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	admin := grpcserver.NewAdminServer(logger)
	go func() {
		logger.Info("Starting gRPC admin server", "address", grpcAddress)
		if err := admin.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
		stop()
	}

	// 9. Graceful shutdown: sessions first, then the engine drains, then storage closes (defers).
	logger.Info("Shutting down gracefully...")
	admin.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not complete", "error", err)
	}
	if !chatServer.WaitSessions(config.ShutdownTimeout) {
		logger.Warn("Some sessions were still open at shutdown")
	}
	admin.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// MessageMapper renders a badger entry for the debug inspector.
// Sequence counters and other keys keep the default rendering.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !storage.IsMessageKey([]byte(key)) {
		return row
	}

	message, err := storage.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: decoding failed"
		return row
	}
	row.Type = "CHAT"
	if message.Room.IsDirect() {
		row.Type = "DIRECT"
	}
	row.Detail = fmt.Sprintf("#%d %s: %s", message.Seq, message.Author, message.Content)
	return row
}
