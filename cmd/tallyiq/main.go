package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/tallyiq/internal/adapter/otel"
	"github.com/neomorfeo/tallyiq/internal/adapter/river"
	"github.com/neomorfeo/tallyiq/internal/adapter/sqlite"
	"github.com/neomorfeo/tallyiq/internal/app"
	"github.com/neomorfeo/tallyiq/internal/services"

	handler "github.com/neomorfeo/tallyiq/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("tallyiq: %v", err)
	}
}

// testHookServerReady, when set, receives the listener's bound address once
// it is accepting connections. Tests use it with PORT=0 to discover the
// ephemeral port.
var testHookServerReady func(addr net.Addr)

func run() error {
	ctx := context.Background()

	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "tallyiq.db")

	lockWindow, err := time.ParseDuration(envOrDefault("ORDER_LOCK_WINDOW", "0"))
	if err != nil {
		return fmt.Errorf("parsing ORDER_LOCK_WINDOW: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	backend, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	riverClient, err := river.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error("river stop", "error", err)
		}
	}()

	publisher := otel.NewTracingPublisher(river.NewPublisher(riverClient))

	// --- Application ---
	l10n := services.NewCatalog(services.DefaultMessages)
	ws := app.NewWorkspace(app.Config{
		Backend:   otel.NewTracingBackend(backend),
		Publisher: publisher,
		Auth: services.CapabilitySet{
			services.CapManageCatalog: true,
			services.CapDeleteItems:   true,
			services.CapSettings:      true,
		},
		L10n:       l10n,
		Surface:    services.NewLogSurface(logger, l10n),
		Logger:     logger,
		LockWindow: lockWindow,
	})
	ws.Init(ctx)
	if err := ws.Load(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("loading workspace: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("tallyiq", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("tallyiq", "0.1.0"))
	handler.Register(api, ws)

	// --- Server ---
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if testHookServerReady != nil {
		testHookServerReady(ln.Addr())
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		_, boundPort, _ := net.SplitHostPort(ln.Addr().String())
		logger.Info("tallyiq listening", "addr", ln.Addr().String(), "docs", "http://localhost:"+boundPort+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
