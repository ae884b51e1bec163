package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/memory"
	"github.com/getpup/pupkernel/es/adapters/mysql"
	"github.com/getpup/pupkernel/es/adapters/postgres"
	"github.com/getpup/pupkernel/es/adapters/redis"
	"github.com/getpup/pupkernel/es/adapters/sqlite"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/snapshot"
	"github.com/getpup/pupkernel/es/store"
)

// backend is an opened event store and the resources behind it.
type backend struct {
	store   store.Store
	loader  store.AggregateLoader
	closers []func() error
}

func (b *backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// migrator is implemented by the SQL stores.
type migrator interface {
	Migrate(ctx context.Context) error
}

func openBackend(ctx context.Context, cfg Config, registry *eventtype.Registry, logger es.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Backend {
	case "memory":
		b.store = memory.NewStore(memory.WithLogger(logger))
	default:
		db, s, err := openSQL(cfg, registry, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := s.(migrator).Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("migrate %s: %w", cfg.Backend, err)
		}
		b.store = s
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		b.closers = append(b.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cache := redis.NewSnapshotStore(rdb, registry, redis.WithTTL(cfg.SnapshotTTL))
		b.loader = snapshot.NewLoader(b.store, cache, snapshot.WithLogger(logger))
	}
	return b, nil
}

func openSQL(cfg Config, registry *eventtype.Registry, logger es.Logger) (*sql.DB, store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewStore(db, registry, sqlite.NewStoreConfig(sqlite.WithLogger(logger))), nil
	case "postgres":
		db, err := sql.Open(postgres.DriverName, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.NewStore(db, registry, postgres.NewStoreConfig(postgres.WithLogger(logger))), nil
	case "mysql":
		db, err := sql.Open(mysql.DriverName, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, mysql.NewStore(db, registry, mysql.NewStoreConfig(mysql.WithLogger(logger))), nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
