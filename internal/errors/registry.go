package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (E100-E129)
	// ============================================

	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not readable",
		Suggestion: "Check the --config path or omit it to run on defaults",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Config file invalid",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration value",
		Suggestion: "Durations use Go syntax such as 10s or 1m30s",
	},
	"E110": {
		Category:   CategoryConfig,
		Message:    "Unknown storage backend",
		Suggestion: "Use one of: memory, s3, redis, sql, badger",
	},
	"E111": {
		Category:   CategoryConfig,
		Message:    "S3 bucket not set",
		Suggestion: "Set storage.s3.bucket or ROOMSYNC_STORAGE__S3__BUCKET",
	},
	"E112": {
		Category:   CategoryConfig,
		Message:    "Badger directory not set",
		Suggestion: "Set storage.badger.dir or ROOMSYNC_STORAGE__BADGER__DIR",
	},
	"E113": {
		Category: CategoryConfig,
		Message:  "Persistence interval must be positive",
	},
	"E114": {
		Category:   CategoryConfig,
		Message:    "Redis address not set",
		Suggestion: "Set storage.redis.addr, e.g. localhost:6379",
	},
	"E115": {
		Category:   CategoryConfig,
		Message:    "SQL data source not set",
		Suggestion: "Set storage.sql.dsn, e.g. file:roomsync.db",
	},
	"E116": {
		Category:   CategoryConfig,
		Message:    "Invalid server setting",
		Suggestion: "server.ping_interval must be shorter than server.pong_wait",
	},
	"E117": {
		Category:   CategoryConfig,
		Message:    "Invalid log setting",
		Suggestion: "log.level is one of debug, info, warn, error; log.format is text or json",
	},

	// ============================================
	// Storage Errors (E130-E139)
	// ============================================

	"E130": {
		Category:   CategoryStorage,
		Message:    "Storage backend unavailable",
		Suggestion: "Check that the backend is reachable with the configured credentials",
	},
	"E131": {
		Category: CategoryStorage,
		Message:  "Snapshot not found",
	},

	// ============================================
	// CLI Errors (E140-E149)
	// ============================================

	"E140": {
		Category:   CategoryCLI,
		Message:    "Invalid room id",
		Suggestion: "Room ids are 1-128 printable characters without slashes or spaces",
	},
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
