package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/vango-dev/roomsync/internal/config"
	"github.com/vango-dev/roomsync/internal/errors"
	"github.com/vango-dev/roomsync/pkg/storage"
)

// openStore opens the configured storage backend. Network backends are
// probed so an unreachable store fails at startup.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage; room state is lost on restart")
		return storage.NewMemoryStore(), nil

	case config.BackendS3:
		client := storage.NewS3Client(storage.S3ClientConfig{
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
			UsePathStyle:    sc.S3.UsePathStyle,
		})
		return storage.NewS3Store(client, sc.S3.Bucket, storage.WithS3Prefix(sc.S3.Prefix)), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, errors.New("E130").WithDetail("redis at " + sc.Redis.Addr).Wrap(err)
		}
		return ownedStore{storage.NewRedisStore(client, storage.WithRedisPrefix(sc.Redis.Prefix)), client.Close}, nil

	case config.BackendSQL:
		dialect, err := cfg.SQLDialect()
		if err != nil {
			return nil, errors.New("E102").WithField("storage.sql.dialect").Wrap(err)
		}
		db, err := sql.Open(sc.SQL.Driver, sc.SQL.DSN)
		if err != nil {
			return nil, errors.New("E130").WithDetail("sql driver " + sc.SQL.Driver).Wrap(err)
		}
		if dialect == storage.DialectSQLite {
			db.SetMaxOpenConns(1)
		}
		s := storage.NewSQLStore(db,
			storage.WithSQLDialect(dialect),
			storage.WithSQLTableName(sc.SQL.Table),
		)
		if err := s.CreateTable(ctx); err != nil {
			db.Close()
			return nil, errors.New("E130").WithDetail("create table " + sc.SQL.Table).Wrap(err)
		}
		return ownedStore{s, db.Close}, nil

	case config.BackendBadger:
		s, err := storage.OpenBadgerStore(storage.BadgerConfig{
			Dir:        sc.Badger.Dir,
			SyncWrites: sc.Badger.SyncWrites,
			GCInterval: sc.Badger.GCInterval,
		}, logger)
		if err != nil {
			return nil, errors.New("E130").WithDetail("badger at " + sc.Badger.Dir).Wrap(err)
		}
		return s, nil
	}
	return nil, errors.New("E110").WithField("storage.backend")
}

// ownedStore closes the client a store was built on after the store itself.
type ownedStore struct {
	storage.Store
	release func() error
}

func (o ownedStore) Close() error {
	return stderrors.Join(o.Store.Close(), o.release())
}
