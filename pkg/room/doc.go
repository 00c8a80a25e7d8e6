// Package room coordinates the connections, engine and persistence of a
// collaborative room.
//
// A Room is one instance serving exactly one room id. Its pieces are:
//
//   - Identity: the room id, fixed by the first connection (or read back
//     from instance state at cold start) and never changed afterwards.
//   - Loader: constructs the engine once, from the stored snapshot if any.
//     Concurrent first callers share one load.
//   - Scheduler: turns change notifications into at most one snapshot write
//     per interval.
//   - Bridge: maps transport events (accept, message, close, error) onto
//     engine calls through a session registry.
//
// A Directory hands out one Room per room id:
//
//	dir := room.NewDirectory(store, room.Options{
//	    Factory:         records.Factory(),
//	    Schema:          engine.Schema{Name: "tldraw", Version: 1},
//	    PersistInterval: 10 * time.Second,
//	})
//	r, err := dir.Room(ctx, "r1")
//	err = r.Accept(ctx, "r1", sessionID, conn)
//
// Snapshots are stored under SnapshotKey(roomID), "rooms/<roomID>".
package room
