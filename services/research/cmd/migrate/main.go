package main

import (
	"context"
	"flag"
	"log"
	"sort"

	"hhresearch/common/database"
	"hhresearch/common/database/schema"
	"hhresearch/common/database/schema/migrations"
	"hhresearch/services/research/internal/app"
	"hhresearch/services/research/internal/config"

	"go.uber.org/zap"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the most recently applied migration")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseOptions(), logger)
	if err != nil {
		logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
	}
	defer db.Close()

	migrator := schema.NewMigrator(db.Conn(), logger)

	if *rollback {
		rollbackLatest(ctx, migrator, logger)
		return
	}

	applied, err := migrator.Migrate(ctx, migrations.All)
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("all migrations completed", zap.Int("applied", applied))
}

func rollbackLatest(ctx context.Context, migrator *schema.Migrator, logger *zap.Logger) {
	if err := migrator.CreateMigrationsTable(ctx); err != nil {
		logger.Fatal("failed to create migrations table", zap.Error(err))
	}
	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		logger.Fatal("failed to get applied migrations", zap.Error(err))
	}

	known := append([]schema.Migration(nil), migrations.All...)
	sort.Slice(known, func(i, j int) bool { return known[i].Version > known[j].Version })
	for _, migration := range known {
		if _, ok := applied[migration.Version]; !ok {
			continue
		}
		if err := migrator.RollbackMigration(ctx, migration); err != nil {
			logger.Fatal("rollback failed", zap.Int("version", migration.Version), zap.Error(err))
		}
		logger.Info("rolled back migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))
		return
	}
	logger.Info("no applied migrations to roll back")
}
