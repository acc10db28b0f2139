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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sqliteadapter "github.com/ericfisherdev/keyrelay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyrelay/internal/adapter/driven/upstream"
	httphandler "github.com/ericfisherdev/keyrelay/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyrelay/internal/application"
	"github.com/ericfisherdev/keyrelay/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"bind_path", cfg.BindPath,
		"db_path", cfg.DBPath,
		"auth_mode", cfg.AuthMode,
		"cooldown", cfg.Cooldown,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the credential store (dual reader/writer with WAL mode); it
	// stays open for the process lifetime.
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("credential store opened", "path", cfg.DBPath)

	// 4. Run migrations on the writer connection; idempotent across restarts.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters and services.
	keyStore := sqliteadapter.NewKeyRepo(db)

	var auth application.Authenticator
	switch cfg.AuthMode {
	case config.AuthModePool:
		auth = application.PoolTokenAuthenticator{}
	default:
		// An empty table in static mode is a provisioning defect; refuse
		// to start rather than reject every request at runtime.
		n, err := keyStore.CountByPool(ctx, "")
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no credentials provisioned in %s; add keys with keyadmin before starting", cfg.DBPath)
		}
		slog.Info("credentials provisioned", "count", n)
		auth = application.NewStaticTokenAuthenticator(cfg.APIToken)
	}

	scheduler := application.NewScheduler(keyStore, cfg.Cooldown)
	forwarder := upstream.NewForwarder(nil)

	handler := httphandler.NewHandler(auth, scheduler, forwarder, slog.Default())

	// No read/write timeouts: the relay streams request and response bodies
	// of arbitrary size. Header reads still get a deadline.
	srv := &http.Server{
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 6. Bind the unix socket, clearing a stale file from an unclean exit.
	if err := os.Remove(cfg.BindPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", cfg.BindPath, err)
	}
	ln, err := net.Listen("unix", cfg.BindPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.BindPath, err)
	}

	go func() {
		slog.Info("relay listening", "bind_path", cfg.BindPath)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 8. Graceful shutdown with drain timeout; in-flight relays finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
