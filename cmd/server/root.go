package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/recipebox/internal/auth"
	"github.com/sakif/recipebox/internal/config"
	"github.com/sakif/recipebox/internal/handler"
	"github.com/sakif/recipebox/internal/repository/sqlstore"
	"github.com/sakif/recipebox/internal/server"
	"github.com/sakif/recipebox/internal/service"
	"github.com/sakif/recipebox/internal/spoonacular"
	"github.com/sakif/recipebox/internal/storage"
)

// app is what every subcommand needs: the loaded config and a logger.
type app struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "RecipeBox web server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "TOML config file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run migrations and serve HTTP",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.migrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "check-db",
			Short: "Check the database connection and print the server version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.checkDB(cmd.Context(), cmd)
			},
		},
	)

	return rootCmd
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	if a.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", a.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Server.SecretKey == config.DefaultSecretKey {
		a.logger.Warn("SECRET_KEY is not set; using the development default. Sessions are forgeable.")
	}

	db, err := a.openDB(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := buildStore(ctx, a.cfg)
	if err != nil {
		a.logger.Warn("image storage unavailable, uploads disabled", slog.String("error", err.Error()))
		store = nil
	}
	if store != nil {
		a.logger.Info("image storage ready", slog.String("backend", store.Name()))
	} else {
		a.logger.Warn("no image storage configured, uploads disabled")
	}

	deps := server.Deps{
		DB:         db,
		Store:      store,
		HTTPClient: &http.Client{Timeout: service.DownloadTimeout},
		Version:    version,
	}

	if provider := a.buildProvider(); provider != nil {
		deps.Provider = provider
	} else {
		a.logger.Warn("SPOONACULAR_API_KEY is not set; external search and import disabled")
	}

	if gh := buildGitHub(a.cfg); gh != nil {
		deps.GitHub = gh
		a.logger.Info("GitHub sign-in enabled", slog.String("callback", a.cfg.GitHubCallbackURL()))
	}

	srv, err := server.New(a.cfg, deps, a.logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func (a *app) migrate(ctx context.Context) error {
	db, err := a.openDB(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	a.logger.Info("migrations applied", slog.String("dialect", string(db.Dialect())))
	return nil
}

func (a *app) checkDB(ctx context.Context, cmd *cobra.Command) error {
	db, err := a.openDB(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	v, err := db.ServerVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database: %s ok\nversion: %s\n", db.Dialect(), v)
	return nil
}

// openDB connects to the configured database, applying migrations when
// migrate is set.
func (a *app) openDB(ctx context.Context, migrate bool) (*sqlstore.DB, error) {
	dialect, err := sqlstore.ParseDialect(a.cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := a.cfg.DatabaseDSN()
	if err != nil {
		return nil, err
	}
	if dialect == sqlstore.SQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dbCfg := sqlstore.Config{Dialect: dialect, DSN: dsn}
	if migrate {
		return sqlstore.Open(ctx, dbCfg, a.logger)
	}
	return sqlstore.Connect(ctx, dbCfg, a.logger)
}

// buildStore picks the image backend: S3 when fully configured, a local
// directory when UPLOAD_DIR is set, otherwise none (nil).
func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch {
	case cfg.S3Enabled():
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	case cfg.Storage.UploadDir != "":
		disk, err := storage.NewDisk(cfg.Storage.UploadDir)
		if err != nil {
			return nil, err
		}
		return disk, nil
	default:
		return nil, nil
	}
}

// buildProvider returns the Spoonacular client, or nil without an API key.
// The nil is returned as the interface so server.Deps sees a true nil.
func (a *app) buildProvider() service.RecipeProvider {
	if a.cfg.Spoonacular.APIKey == "" {
		return nil
	}
	client, err := spoonacular.New(a.cfg.Spoonacular.APIKey, a.cfg.Spoonacular.BaseURL,
		spoonacular.WithTimeout(a.cfg.SpoonacularTimeout()))
	if err != nil {
		a.logger.Warn("spoonacular client disabled", slog.String("error", err.Error()))
		return nil
	}
	return client
}

func buildGitHub(cfg *config.Config) handler.GitHub {
	if !cfg.GitHubEnabled() {
		return nil
	}
	return auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHubCallbackURL())
}
