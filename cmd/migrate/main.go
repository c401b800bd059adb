package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"libraryapi/internal/config"
	"libraryapi/internal/platform/db"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	config.LoadEnvFiles()
	log := logrus.New()
	dir := migrationsDir()

	if *command == "create" {
		if err := create(dir, *name); err != nil {
			log.WithError(err).Fatal("create migration")
		}
		log.WithField("name", *name).Info("migration created")
		return
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = defaultDSN
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, dsn, db.PoolConfig{MaxConns: 2})
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer pool.Close()

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := migrate(sqlDB, *command, dir); err != nil {
		log.WithError(err).WithField("command", *command).Fatal("migration failed")
	}
	log.WithFields(logrus.Fields{"command": *command, "dir": dir}).Info("migration done")
}

func migrate(sqlDB *sql.DB, command, dir string) error {
	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	switch command {
	case "up":
		return goose.Up(sqlDB, dir)
	case "down":
		return goose.Down(sqlDB, dir)
	case "status":
		return goose.Status(sqlDB, dir)
	default:
		return fmt.Errorf("unknown command %q, use up, down, status or create", command)
	}
}

func create(dir, name string) error {
	if name == "" {
		return errors.New("name is required for 'create'")
	}
	return goose.Create(nil, dir, name, "sql")
}
