// Package config handles modwatch configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store backends.
const (
	StoreBackendMongoDB = "mongodb"
	StoreBackendMemory  = "memory"
)

// Settings backends.
const (
	SettingsBackendSQLite = "sqlite"
	SettingsBackendRedis  = "redis"
)

// Config is the root configuration structure for modwatch.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Store settings for the backing document store
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Settings persistence for the open-channel list
	Settings SettingsConfig `yaml:"settings" mapstructure:"settings"`

	// Identity settings for session token verification
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Idle settings for pause/resume coordination
	Idle IdleConfig `yaml:"idle" mapstructure:"idle"`
}

// GlobalConfig contains global modwatch settings.
type GlobalConfig struct {
	// DataDir is where modwatch stores local data (default: ~/.local/share/modwatch).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// StoreConfig contains document store settings.
type StoreConfig struct {
	// Backend selects the store implementation (mongodb, memory).
	Backend string `yaml:"backend" mapstructure:"backend"`

	// URI is the MongoDB connection string.
	URI string `yaml:"uri" mapstructure:"uri"`

	// Database is the MongoDB database name.
	Database string `yaml:"database" mapstructure:"database"`

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// SettingsConfig contains settings persistence options.
type SettingsConfig struct {
	// Backend selects the settings store (sqlite, redis).
	Backend string `yaml:"backend" mapstructure:"backend"`

	// SQLitePath is the SQLite settings file (default: <data_dir>/settings.db).
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// RedisAddr is the Redis host:port.
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`

	// RedisPassword is the Redis password, if any.
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`

	// RedisDB is the Redis database index.
	RedisDB int `yaml:"redis_db" mapstructure:"redis_db"`

	// RedisKey is the key holding the settings blob.
	RedisKey string `yaml:"redis_key" mapstructure:"redis_key"`
}

// IdentityConfig contains session token verification settings.
type IdentityConfig struct {
	// Secret is the HS256 signing secret.
	Secret string `yaml:"secret" mapstructure:"secret"`

	// Issuer, when set, must match the token's issuer claim.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`

	// Token is the session token. TokenFile takes precedence when set.
	Token string `yaml:"token" mapstructure:"token"`

	// TokenFile is a file containing the session token.
	TokenFile string `yaml:"token_file" mapstructure:"token_file"`

	// StaffRoles lists roles granted moderation access.
	StaffRoles []string `yaml:"staff_roles" mapstructure:"staff_roles"`
}

// IdleConfig contains idle coordination settings.
type IdleConfig struct {
	// Threshold is how long without interaction counts as idle.
	Threshold time.Duration `yaml:"threshold" mapstructure:"threshold"`

	// PollInterval is how often the idle state is re-evaluated.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "modwatch")

	return &Config{
		Global: GlobalConfig{
			DataDir: dataDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Backend:        StoreBackendMongoDB,
			URI:            "mongodb://localhost:27017",
			Database:       "modwatch",
			ConnectTimeout: 10 * time.Second,
		},
		Settings: SettingsConfig{
			Backend:    SettingsBackendSQLite,
			SQLitePath: filepath.Join(dataDir, "settings.db"),
			RedisAddr:  "localhost:6379",
		},
		Identity: IdentityConfig{
			StaffRoles: []string{"moderator", "admin"},
		},
		Idle: IdleConfig{
			Threshold:    3 * time.Minute,
			PollInterval: 5 * time.Second,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendMongoDB:
		if c.Store.URI == "" {
			return fmt.Errorf("store.uri is required for the mongodb backend")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store.database is required for the mongodb backend")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Settings.Backend {
	case SettingsBackendSQLite:
		if c.Settings.SQLitePath == "" {
			return fmt.Errorf("settings.sqlite_path is required for the sqlite backend")
		}
	case SettingsBackendRedis:
		if c.Settings.RedisAddr == "" {
			return fmt.Errorf("settings.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown settings backend %q", c.Settings.Backend)
	}

	if c.Idle.Threshold <= 0 {
		return fmt.Errorf("idle.threshold must be positive")
	}
	if c.Idle.PollInterval <= 0 {
		return fmt.Errorf("idle.poll_interval must be positive")
	}

	return nil
}

// EnsureDirectories creates the data directory if missing.
func (c *Config) EnsureDirectories() error {
	if c.Global.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Global.DataDir, 0o755)
}
