// Package main is the entry point for the Ajeyam API server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ajeyam/internal/cache"
	"ajeyam/internal/config"
	"ajeyam/internal/database"
	"ajeyam/internal/handlers"
	"ajeyam/internal/mail"
	"ajeyam/internal/middleware"
	"ajeyam/internal/router"
	"ajeyam/internal/session"
	"ajeyam/internal/store"
	"ajeyam/internal/telemetry"
	"ajeyam/internal/token"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: JSON in production, text in development.
	var logHandler slog.Handler
	if cfg.IsDev() {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(logHandler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"allow_inactive_login", cfg.Policy.AllowInactiveLogin,
		"telemetry", cfg.TelemetryExporter,
	)

	// Install trace and metric providers for moderation and ledger events.
	shutdownTelemetry, err := telemetry.Setup(telemetry.Options{
		Exporter:    cfg.TelemetryExporter,
		ServiceName: "ajeyam",
	})
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed the admin account and default categories (no-op if present).
	if cfg.IsDev() {
		if err := database.Seed(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (sessions and the category response cache).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyAddr(), cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	sessionStore := session.NewStore(valkeyClient, cfg.JWTExpiresIn)
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	mailer := mail.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	if !mailer.Enabled() {
		slog.Warn("smtp not configured, mail will be logged only")
	}

	// Initialize data stores.
	userStore := store.NewUserStore(db)
	blogStore := store.NewBlogStore(db)
	categoryStore := store.NewCategoryStore(db)
	commentStore := store.NewCommentStore(db)
	reviewStore := store.NewReviewStore(db)
	ledgerStore := store.NewLedgerStore(db)
	modLog := store.NewModerationLogStore(db)
	responses := cache.NewResponseCache(valkeyClient, "categories", cache.DefaultResponseTTL)

	// Deactivated users keep working tokens only when they may log in.
	authFilter := store.ActiveUsers
	if cfg.Policy.AllowInactiveLogin {
		authFilter = store.AllUsers
	}
	auth := middleware.NewAuth(issuer, sessionStore, userStore, authFilter)

	// Create handler groups with their dependencies.
	sessions := handlers.NewSessions(sessionStore, issuer)
	h := router.Handlers{
		Auth:       handlers.NewAuth(userStore, sessions, mailer, cfg.BaseURL, cfg.Policy),
		Blogs:      handlers.NewBlogs(blogStore, categoryStore, ledgerStore, modLog),
		Comments:   handlers.NewComments(commentStore, blogStore, ledgerStore),
		Reviews:    handlers.NewReviews(reviewStore, modLog),
		Users:      handlers.NewUsers(userStore, blogStore, ledgerStore, sessions, cfg.Policy),
		Categories: handlers.NewCategories(categoryStore, blogStore, responses),
		Moderation: handlers.NewModeration(modLog),
	}

	authLimiter := middleware.NewRateLimiter(cfg.RateLimitAuth, time.Minute)
	defer authLimiter.Stop()
	writeLimiter := middleware.NewRateLimiter(cfg.RateLimitWrite, time.Minute)
	defer writeLimiter.Stop()

	// Set up the Chi router with all middleware and routes.
	r := router.New(auth, h, router.Options{
		CORSOrigins: cfg.CORSOrigins,
		AuthLimiter:  authLimiter,
		WriteLimiter: writeLimiter,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
