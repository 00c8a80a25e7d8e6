// Package storage provides the durable key/value backends room snapshots and
// room identity are written to.
//
// Every backend implements Store:
//
//	store := storage.NewMemoryStore()
//	// or
//	store := storage.NewS3Store(s3Client, "tldraw-rooms")
//	// or
//	store := storage.NewRedisStore(redisClient)
//	// or
//	store := storage.NewSQLStore(db, storage.WithSQLDialect(storage.DialectSQLite))
//	// or
//	store, err := storage.OpenBadgerStore(storage.BadgerConfig{Dir: dir}, logger)
//
// Writes replace the previous value for a key in full. Get reports a missing
// key as (nil, nil).
package storage
