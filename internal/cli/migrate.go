package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"contest-engine/internal/config"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/postgres"
	pgmigrations "contest-engine/internal/infra/postgres/migrations"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

// NewSeedCmd stores a question set read from a JSON file.
func NewSeedCmd(configPath *string) *cobra.Command {
	var setID, file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a question set from a JSON file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, setID, file)
		},
	}
	cmd.Flags().StringVar(&setID, "set", "general", "question set id")
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON array of questions")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return runMigrationsWithConfig(ctx, cfg, newLogger(cfg))
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info("no new migrations")
		return nil
	}
	logger.Info("migrations applied", "group", group.String())
	return nil
}

func runSeed(ctx context.Context, configPath, setID, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewQuestionStore(pool).SaveQuestionSet(ctx, setID, questions); err != nil {
		return err
	}
	logger.Info("question set stored", "set", setID, "questions", len(questions))
	return nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}
