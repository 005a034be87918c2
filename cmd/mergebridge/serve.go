package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	jiraadapter "github.com/ericfisherdev/mergebridge/internal/adapter/driven/jira"
	sqliteadapter "github.com/ericfisherdev/mergebridge/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/mergebridge/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/mergebridge/internal/adapter/driving/web"
	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (dashboard, API and webhook)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	// 1. Setup signal-based context (SIGINT, SIGTERM).
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Load configuration, logger and database (migrations included).
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"repo_include", cfg.RepoInclude,
		"fetch_concurrency", cfg.FetchConcurrency,
		"jira", cfg.HasJira(),
		"webhook_signature", cfg.WebhookSecret != "",
	)

	// 3. Wire stores.
	syncEvents := sqliteadapter.NewSyncEventRepo(rt.db)

	// 4. Source control: stored token first, env token as fallback.
	provider := rt.provider()
	if !provider.HasCredential(ctx) {
		logger.Info("no github token configured, requests answer auth_missing until one is saved")
	}
	aggregator := rt.aggregator(provider)

	// 5. Issue tracker (nil when Jira is not configured).
	var tracker driven.IssueTracker
	if cfg.HasJira() {
		tracker = jiraadapter.NewClient(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraToken, jiraadapter.WithLogger(logger))
		logger.Info("jira client created", "base_url", cfg.JiraBaseURL)
	} else {
		logger.Info("no jira configuration, issue lookups and transitions disabled")
	}
	issues := application.NewIssueService(tracker, logger)

	// 6. Sessions, swept for idleness in the background.
	timings := application.DefaultTimings()
	sessions := application.NewSessionManager(func(id string) *application.ViewSession {
		return application.NewViewSession(id, aggregator, provider, issues, timings, logger)
	}, cfg.SessionTTL, logger)
	go sessions.Run(ctx)
	defer sessions.CloseAll()

	// 7. Webhook status sync.
	webhooks := application.NewWebhookStatusSync(issues, syncEvents, logger)

	// 8. HTTP handlers: API, webhook and dashboard on one mux.
	mux := http.NewServeMux()
	apiHandler := httphandler.NewHandler(rt.secretService(), aggregator, sessions, issues, webhooks, cfg.WebhookSecret, logger)
	httphandler.RegisterAPIRoutes(mux, apiHandler)
	webhandler.RegisterRoutes(mux, webhandler.NewHandler(sessions, logger))

	handler := httphandler.ApplyMiddleware(mux, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 9. Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// 10. Graceful shutdown with 10s timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
