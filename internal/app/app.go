// Package app assembles the stores and services shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"libraryapi/internal/book"
	"libraryapi/internal/circulation"
	"libraryapi/internal/config"
	"libraryapi/internal/dueindex"
	"libraryapi/internal/memstore"
	"libraryapi/internal/platform/db"
	"libraryapi/internal/platform/openlibrary"
	"libraryapi/internal/user"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type App struct {
	Books *book.Service
	// Importer is nil when OPENLIBRARY_URL is empty.
	Importer    *book.Importer
	Users       *user.Service
	Circulation *circulation.Service
	Sweeper     *circulation.Sweeper
	// Index is nil without REDIS_ADDR.
	Index *dueindex.Index

	ready   func(ctx context.Context) error
	closers []func()
}

// Ready reports whether the backing store answers.
func (a *App) Ready(ctx context.Context) error {
	if a.ready == nil {
		return nil
	}
	return a.ready(ctx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	books   book.Repository
	users   user.Repository
	revoked user.RevocationStore
	circ    circulation.Repository
	tx      circulation.TxRunner
}

// New connects to the configured store and, when REDIS_ADDR is set, the due
// index. A Redis that cannot be reached is logged and skipped.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{}

	var st stores
	switch cfg.Store {
	case config.StoreMemory:
		mem := memstore.New()
		st = stores{books: mem, users: mem.Users(), revoked: mem.Users(), circ: mem, tx: mem}
		log.Warn("using in-memory store, data is lost on exit")
	default:
		pool, err := db.Open(ctx, cfg.DSN, db.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.ready = pool.Ping
		st = stores{
			books: book.NewPostgresRepo(pool, cfg.DBTimeout),
			users:   user.NewPostgresRepo(pool, cfg.DBTimeout),
			revoked: user.NewPostgresRevocations(pool, cfg.DBTimeout),
			circ:    circulation.NewPostgresRepo(pool, cfg.DBTimeout),
			tx:      db.NewTxManager(pool),
		}
		log.WithField("dsn", db.RedactDSN(cfg.DSN)).Info("database connection OK")
	}

	a.Books = book.NewService(st.books)
	if cfg.OpenLibraryURL != "" {
		client := openlibrary.NewClient("libraryapi/1.0", cfg.OpenLibraryRPS, 3, openlibrary.WithBaseURL(cfg.OpenLibraryURL))
		a.Importer = book.NewImporter(a.Books, client, log)
	}
	a.Users = user.NewService(st.users, cfg.JWTSecret, cfg.TokenTTL, user.WithRevocations(st.revoked))

	opts := []circulation.Option{
		circulation.WithPolicy(cfg.Policy),
		circulation.WithLogger(log.WithField("component", "circulation")),
		circulation.WithUserDirectory(a.Users),
	}
	if cfg.RedisAddr != "" {
		rdb, err := dueindex.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("due index disabled")
		} else {
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			a.Index = dueindex.New(rdb)
			opts = append(opts, circulation.WithDueIndex(a.Index))
			a.ready = withRedis(a.ready, rdb)
		}
	}

	a.Circulation = circulation.NewService(st.circ, a.Books, st.tx, opts...)
	a.Sweeper = circulation.NewSweeper(a.Circulation, circulation.WithSweepLimit(cfg.SweepLimit))
	return a, nil
}

func withRedis(next func(context.Context) error, rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		if next != nil {
			errs = append(errs, next(ctx))
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		return errors.Join(errs...)
	}
}
