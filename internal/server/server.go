// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/qr-registration/internal/config"
	"codeberg.org/oliverandrich/qr-registration/internal/database"
	"codeberg.org/oliverandrich/qr-registration/internal/handlers"
	"codeberg.org/oliverandrich/qr-registration/internal/i18n"
	"codeberg.org/oliverandrich/qr-registration/internal/repository"
	"codeberg.org/oliverandrich/qr-registration/internal/services/email"
	"codeberg.org/oliverandrich/qr-registration/internal/services/login"
	"codeberg.org/oliverandrich/qr-registration/internal/services/session"
	"codeberg.org/oliverandrich/qr-registration/internal/verification"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, repository.New(db))
	if err != nil {
		return err
	}
	stopSweeper := a.store.Start(ctx)
	defer stopSweeper()

	return startWithGracefulShutdown(ctx, a.echo, cfg)
}

// app bundles the wired components of a running server.
type app struct {
	echo  *echo.Echo
	store *verification.Store
}

func newApp(cfg *config.Config, repo *repository.Repository) (*app, error) {
	store := verification.New(verificationOptions(&cfg.Verification))

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	sessMgr, err := session.NewManager(&cfg.Session, strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	loginSvc := login.NewService(store, sender, repo, &cfg.Verification)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, handlers.New(store), handlers.NewAuth(loginSvc, sessMgr))

	return &app{echo: e, store: store}, nil
}

func verificationOptions(cfg *config.VerificationConfig) verification.Options {
	return verification.Options{
		CodeTTL:         cfg.CodeTTL,
		MaxAttempts:     cfg.MaxAttempts,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
		SweepInterval:   cfg.SweepInterval,
	}
}

// newSender returns the SMTP sender, or the log sender when no SMTP host is set.
func newSender(cfg *config.Config) (login.Sender, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("SMTP not configured, verification codes will be logged")
		return email.LogSender{}, nil
	}
	svc, err := email.NewService(&cfg.SMTP, cfg.Server.AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	return svc, nil
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers, auth *handlers.AuthHandlers) {
	e.GET("/health", h.Health)

	g := e.Group("/auth")
	g.POST("/code", auth.RequestCode)
	g.POST("/verify", auth.VerifyCode)
	g.GET("/me", auth.Me)
	g.POST("/logout", auth.Logout)

	e.RouteNotFound("/*", handlers.NotFound)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	switch tlsResult.Mode {
	case TLSModeOff:
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(ctx, e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(ctx, e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(ctx context.Context, e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.TLSServer.Serve(e.TLSListener)
}
