package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/umlstudio/engine/pkg/config"
	"github.com/umlstudio/engine/pkg/database"
	"github.com/umlstudio/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if !cfg.PersistenceEnabled() {
		log.Fatal("DATABASE_URL is required for migrations")
	}

	db, err := database.OpenPostgres(context.Background(), cfg.DatabaseURL, database.Options{Verbose: true})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := runMigrations(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
