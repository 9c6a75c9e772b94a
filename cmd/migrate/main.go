package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"bargain-service/internal/config"
	"bargain-service/internal/db"

	"go.uber.org/zap"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down|status]\n")
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	switch command {
	case "up", "down", "status":
	default:
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadPostgres()
	if err != nil {
		log.Fatalf("[MIGRATE] failed to load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("[MIGRATE] failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{
		ConnURL:       cfg.ConnURL,
		MaxConns:      2,
		MinConns:      1,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, command, logger); err != nil {
		logger.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logger.Info("migration finished", zap.String("command", command))
}
