package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vango-dev/roomsync/internal/errors"
	"github.com/vango-dev/roomsync/internal/logging"
	"github.com/vango-dev/roomsync/pkg/engine"
	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/server"
	"github.com/vango-dev/roomsync/pkg/storage"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "ROOMSYNC_"

// Storage backend names.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
	BackendBadger = "badger"
)

// Config is the complete process configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Storage     StorageConfig     `koanf:"storage"`
	Engine      EngineConfig      `koanf:"engine"`
	Log         LogConfig         `koanf:"log"`
	Metrics     MetricsConfig     `koanf:"metrics"`

	configPath string
}

// ServerConfig mirrors server.Config.
type ServerConfig struct {
	Address           string        `koanf:"address"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MaxMessageSize    int64         `koanf:"max_message_size"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	PingInterval      time.Duration `koanf:"ping_interval"`
	PongWait          time.Duration `koanf:"pong_wait"`
	SendQueue         int           `koanf:"send_queue"`
	AcceptRate        float64       `koanf:"accept_rate"`
	AcceptBurst       int           `koanf:"accept_burst"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
}

// PersistenceConfig controls snapshot scheduling.
type PersistenceConfig struct {
	// Interval is the throttle window between a change and its snapshot.
	Interval time.Duration `koanf:"interval"`
	// WriteTimeout bounds one snapshot write.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// LoadTimeout bounds loading a room's snapshot and building its engine.
	LoadTimeout time.Duration `koanf:"load_timeout"`
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	Backend string       `koanf:"backend"`
	S3      S3Config     `koanf:"s3"`
	Redis   RedisConfig  `koanf:"redis"`
	SQL     SQLConfig    `koanf:"sql"`
	Badger  BadgerConfig `koanf:"badger"`
}

// S3Config configures an S3 compatible object store (AWS, R2, MinIO).
type S3Config struct {
	Bucket          string `koanf:"bucket"`
	Prefix          string `koanf:"prefix"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// SQLConfig configures the SQL store.
type SQLConfig struct {
	// Driver is the database/sql driver name. Only sqlite is linked in.
	Driver  string `koanf:"driver"`
	DSN     string `koanf:"dsn"`
	Table   string `koanf:"table"`
	Dialect string `koanf:"dialect"`
}

// BadgerConfig configures the embedded Badger store.
type BadgerConfig struct {
	Dir        string        `koanf:"dir"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// EngineConfig is handed to the engine factory.
type EngineConfig struct {
	SchemaName    string `koanf:"schema_name"`
	SchemaVersion int    `koanf:"schema_version"`
	MaxTombstones int    `koanf:"max_tombstones"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Defaults returns the built-in values as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"server.address":             ":8787",
		"server.read_header_timeout": "10s",
		"server.shutdown_timeout":    "30s",
		"server.max_message_size":    4 << 20,
		"server.write_timeout":       "10s",
		"server.ping_interval":       "30s",
		"server.pong_wait":           "60s",
		"server.send_queue":          256,
		"server.accept_rate":         50,
		"server.accept_burst":        100,
		"server.allowed_origins":     []string{},

		"persistence.interval":      "10s",
		"persistence.write_timeout": "30s",
		"persistence.load_timeout":  "30s",

		"storage.backend":            BackendMemory,
		"storage.s3.region":          "auto",
		"storage.redis.addr":         "localhost:6379",
		"storage.redis.prefix":       "roomsync:",
		"storage.sql.driver":         "sqlite",
		"storage.sql.table":          "roomsync_blobs",
		"storage.badger.gc_interval": "5m",

		"engine.schema_name":    "tldraw",
		"engine.schema_version": 1,
		"engine.max_tombstones": 10000,

		"log.level":  "info",
		"log.format": "text",

		"metrics.enabled": true,
		"metrics.path":    "/metrics",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the environment and overrides, then validates it.
// Override keys are flat dotted paths such as "server.address".
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(maps.Unflatten(Defaults(), ".")), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New("E100").WithDetail(path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New("E101").
				WithDetail("Failed to parse " + path).
				WithSuggestion("Check that the file is valid YAML").
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(maps.Unflatten(overrides, ".")), nil); err != nil {
			return nil, fmt.Errorf("config: load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New("E102").Wrap(err)
	}
	cfg.configPath = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ROOMSYNC_STORAGE__S3__ACCESS_KEY_ID to storage.s3.access_key_id.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.configPath
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("E111").WithField("storage.s3.bucket"))
		}
	case BackendSQL:
		if c.Storage.SQL.DSN == "" {
			errs = append(errs, errors.New("E115").WithField("storage.sql.dsn"))
		}
		if _, err := storage.ParseSQLDialect(c.sqlDialectName()); err != nil {
			errs = append(errs, errors.New("E102").WithField("storage.sql.dialect").Wrap(err))
		}
	case BackendBadger:
		if c.Storage.Badger.Dir == "" {
			errs = append(errs, errors.New("E112").WithField("storage.badger.dir"))
		}
	default:
		errs = append(errs, errors.New("E110").
			WithField("storage.backend").
			WithDetail(fmt.Sprintf("storage.backend is %q", c.Storage.Backend)))
	}
	if c.Storage.Backend == BackendRedis && c.Storage.Redis.Addr == "" {
		errs = append(errs, errors.New("E114").WithField("storage.redis.addr"))
	}

	if c.Persistence.Interval <= 0 {
		errs = append(errs, errors.New("E113").
			WithField("persistence.interval").
			WithDetail(fmt.Sprintf("got %s", c.Persistence.Interval)))
	}

	if c.Server.PingInterval > 0 && c.Server.PongWait > 0 && c.Server.PingInterval >= c.Server.PongWait {
		errs = append(errs, errors.New("E116").WithField("server.ping_interval"))
	}
	if c.Server.AcceptRate < 0 {
		errs = append(errs, errors.New("E116").
			WithField("server.accept_rate").
			WithSuggestion("Use 0 to disable admission limiting"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errors.New("E117").WithField("log.level").Wrap(err))
	}
	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		errs = append(errs, errors.New("E117").WithField("log.format").Wrap(err))
	}

	return stderrors.Join(errs...)
}

func (c *Config) sqlDialectName() string {
	if c.Storage.SQL.Dialect != "" {
		return c.Storage.SQL.Dialect
	}
	return c.Storage.SQL.Driver
}

// SQLDialect returns the configured dialect, falling back to the driver name.
func (c *Config) SQLDialect() (storage.SQLDialect, error) {
	return storage.ParseSQLDialect(c.sqlDialectName())
}

// ServerConfig converts the server section into a server.Config.
func (c *Config) ServerConfig() server.Config {
	s := c.Server
	cfg := server.Config{
		Address:           s.Address,
		ReadHeaderTimeout: s.ReadHeaderTimeout,
		ShutdownTimeout:   s.ShutdownTimeout,
		MaxMessageSize:    s.MaxMessageSize,
		WriteTimeout:      s.WriteTimeout,
		PingInterval:      s.PingInterval,
		PongWait:          s.PongWait,
		SendQueue:         s.SendQueue,
		AcceptRate:        s.AcceptRate,
		AcceptBurst:       s.AcceptBurst,
		AllowedOrigins:    append([]string(nil), s.AllowedOrigins...),
	}
	if c.Metrics.Enabled {
		cfg.MetricsPath = c.Metrics.Path
	}
	return cfg
}

// Schema returns the engine schema.
func (c *Config) Schema() engine.Schema {
	return engine.Schema{Name: c.Engine.SchemaName, Version: c.Engine.SchemaVersion}
}

// RoomOptions fills the configurable room options. The caller supplies
// Factory, Metrics and Logger.
func (c *Config) RoomOptions() room.Options {
	return room.Options{
		Schema:          c.Schema(),
		PersistInterval: c.Persistence.Interval,
		WriteTimeout:    c.Persistence.WriteTimeout,
		LoadTimeout:     c.Persistence.LoadTimeout,
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
