package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	githubadapter "github.com/ericfisherdev/mergebridge/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/mergebridge/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/config"
	"github.com/ericfisherdev/mergebridge/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "mergebridge",
		Short: "Merge GitHub pull requests and keep their Jira issues in step.",
		Long: `mergebridge lists open pull requests that reference a Jira issue, merges
them on request, and moves the linked issue to Done when GitHub reports the
merge through a webhook.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				return os.Setenv("MERGEBRIDGE_CONFIG", configPath)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides MERGEBRIDGE_CONFIG)")

	root.AddCommand(newServeCmd(), newAggregateCmd(), newSecretCmd())
	return root
}

// runtime holds what every subcommand needs: config, logger and the opened,
// migrated database.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqliteadapter.DB
	secrets  *sqliteadapter.SecretRepo
	closeLog func() error
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		_ = closeLog()
		return nil, err
	}

	if cfg.SecretKey == nil {
		logger.Warn("MERGEBRIDGE_SECRET_KEY not set; secret store disabled, using env credentials only")
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		secrets:  sqliteadapter.NewSecretRepo(db, cfg.SecretKey),
		closeLog: closeLog,
	}, nil
}

func (r *runtime) Close() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("error closing database", "error", err)
	}
	_ = r.closeLog()
}

func (r *runtime) provider() *application.SourceControlProvider {
	return application.NewSourceControlProvider(r.secrets, r.cfg.GitHubToken, githubadapter.Factory)
}

func (r *runtime) aggregator(clients application.ClientSource) *application.RepoAggregator {
	return application.NewRepoAggregator(clients, r.logger,
		application.WithInclude(r.cfg.RepoInclude),
		application.WithConcurrency(r.cfg.FetchConcurrency),
	)
}

func (r *runtime) secretService() *application.SecretService {
	return application.NewSecretService(r.secrets, githubadapter.Factory, r.logger)
}
