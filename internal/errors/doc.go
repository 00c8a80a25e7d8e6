// Package errors provides coded, actionable errors for roomsync startup
// and operator commands.
//
// Runtime failures inside a room are plain Go errors with sentinel values
// (see pkg/room and pkg/server). This package is for the errors an operator
// reads on a terminal: bad configuration, an unreachable storage backend,
// a malformed CLI argument. Each carries a stable code, a short message, an
// optional detail and a hint.
//
// # Error Categories
//
//   - config: configuration loading and validation
//   - storage: opening a storage backend
//   - cli: command line usage
//
// # Usage
//
//	err := errors.New("E110").
//	    WithDetail(`storage.backend is "dynamo"`).
//	    WithSuggestion("Use one of: memory, s3, redis, sql, badger")
//
//	errors.PrintError(os.Stderr, err)
//	// Output:
//	// ERROR E110: Unknown storage backend
//	//
//	//   storage.backend is "dynamo"
//	//
//	//   Hint: Use one of: memory, s3, redis, sql, badger
package errors
