package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// ConfigFileUsed returns the config file that was loaded, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "modwatch"))
	}

	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "modwatch"))
	}

	v.AddConfigPath(".")

	v.SetEnvPrefix("MODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults so Unmarshal sees every key
	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.uri", cfg.Store.URI)
	v.SetDefault("store.database", cfg.Store.Database)
	v.SetDefault("store.connect_timeout", cfg.Store.ConnectTimeout)
	v.SetDefault("settings.backend", cfg.Settings.Backend)
	v.SetDefault("settings.sqlite_path", cfg.Settings.SQLitePath)
	v.SetDefault("settings.redis_addr", cfg.Settings.RedisAddr)
	v.SetDefault("settings.redis_password", cfg.Settings.RedisPassword)
	v.SetDefault("settings.redis_db", cfg.Settings.RedisDB)
	v.SetDefault("settings.redis_key", cfg.Settings.RedisKey)
	v.SetDefault("identity.secret", cfg.Identity.Secret)
	v.SetDefault("identity.issuer", cfg.Identity.Issuer)
	v.SetDefault("identity.token", cfg.Identity.Token)
	v.SetDefault("identity.token_file", cfg.Identity.TokenFile)
	v.SetDefault("identity.staff_roles", cfg.Identity.StaffRoles)
	v.SetDefault("idle.threshold", cfg.Idle.Threshold)
	v.SetDefault("idle.poll_interval", cfg.Idle.PollInterval)
}

// loadConfigFile reads the config file if present.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	return l.v.ReadInConfig()
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Settings.SQLitePath = expandTilde(cfg.Settings.SQLitePath)
	cfg.Identity.TokenFile = expandTilde(cfg.Identity.TokenFile)
}
