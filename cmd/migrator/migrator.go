package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/NordCoder/Authus/internal/obs"
	"github.com/NordCoder/Authus/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	command := flag.String("command", "up", "goose command: up, down, status, version")
	flag.Parse()

	log, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "authus/migrator"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("DB_URL is empty")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("set dialect", zap.Error(err))
	}
	db, err := goose.OpenDBWithDriver("pgx", dbURL)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := goose.RunContext(ctx, *command, db, "."); err != nil {
		log.Fatal("migrate", zap.String("command", *command), zap.Error(err))
	}
	log.Info("migrations done", zap.String("command", *command))
}
