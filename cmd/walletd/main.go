// Command walletd serves the local wallet to the portal UI over HTTP.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OKaluzny/healthchain-wallet/internal/app"
	"github.com/OKaluzny/healthchain-wallet/internal/config"
	"github.com/OKaluzny/healthchain-wallet/internal/handler"
	"github.com/OKaluzny/healthchain-wallet/internal/infra"
	"github.com/OKaluzny/healthchain-wallet/internal/session"
)

func main() {
	ctx := context.Background()

	// .env is optional and never overrides the environment
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// tracer first so the logger can attach span ids
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}
	infra.SetupLogger(os.Stdout, cfg)

	creds := session.NewChannelCredentials(8)
	svc, err := app.New(cfg, creds)
	if err != nil {
		slog.Error("failed to init wallet", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}()

	if err := svc.Session.Restore(ctx); err != nil {
		slog.Warn("could not restore previous session", "error", err)
	}
	if err := svc.Monitor.Start(ctx); err != nil {
		slog.Error("failed to start balance monitor", "error", err)
		os.Exit(1)
	}
	defer svc.Monitor.Stop()

	go func() {
		for ev := range svc.Monitor.Events() {
			slog.Debug("balances refreshed", "message", ev.Message, "addresses", len(ev.Balances))
		}
	}()
	go func() {
		for req := range creds.Requests() {
			slog.Info("wallet password requested", "request_id", req.ID, "reason", req.Reason)
		}
	}()

	h := handler.NewWalletHandler(svc.Session, svc.Manager, svc.Monitor, creds, svc.Records, svc.Payer)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"network", cfg.Network,
		"storage", cfg.StorageDriver,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
