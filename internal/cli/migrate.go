package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-proctor/internal/config"
	"quiz-proctor/internal/infra/postgres/migrations"
	"quiz-proctor/internal/logger"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres key-value table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runMigrationsWithConfig(cmd.Context(), cfg, logger.Setup(cfg.Log.Level, cfg.Log.Format))
		},
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	return Migrate(ctx, cfg.Postgres.URL, log)
}

// Migrate applies every pending migration to the database at dsn.
func Migrate(ctx context.Context, dsn string, log zerolog.Logger) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if group.IsZero() {
		log.Info().Msg("no new migrations")
		return nil
	}
	log.Info().Str("group", group.String()).Msg("migrations applied")
	return nil
}
