// Package main is the entry point for the modwatchd daemon.
// modwatchd mirrors chat rooms, mentions, and moderation flags from the
// backing document store and exposes them to console frontends, pausing
// ingestion while the operator is idle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/wrenna/modwatch/internal/config"
	"github.com/wrenna/modwatch/internal/console"
	"github.com/wrenna/modwatch/internal/docstore"
	"github.com/wrenna/modwatch/internal/docstore/mongodb"
	"github.com/wrenna/modwatch/internal/events"
	"github.com/wrenna/modwatch/internal/identity"
	"github.com/wrenna/modwatch/internal/logging"
	"github.com/wrenna/modwatch/internal/models"
	"github.com/wrenna/modwatch/internal/settings"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		configFile string
		logLevel   string
		logFormat  string
	)

	rootCmd := &cobra.Command{
		Use:          "modwatchd",
		Short:        "Live chat moderation console daemon",
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile, logLevel, logFormat)
		},
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (default is $HOME/.config/modwatch/config.yaml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "", "override logging format (json, console)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configFile, logLevel, logFormat string) error {
	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	logger := logging.Component("modwatchd")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}
	if cfgUsed := loader.ConfigFileUsed(); cfgUsed != "" {
		logger.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Msg("modwatchd starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	settingsStore, err := buildSettings(cfg)
	if err != nil {
		return err
	}
	defer settingsStore.Close()

	provider, err := buildIdentity(cfg)
	if err != nil {
		return err
	}

	publisher := events.NewInMemoryPublisher()
	logEvents(publisher)

	con, err := console.New(ctx, console.Options{
		Store:         store,
		Identity:      provider,
		Settings:      settingsStore,
		Publisher:     publisher,
		IdleThreshold: cfg.Idle.Threshold,
		PollInterval:  cfg.Idle.PollInterval,
	})
	if err != nil {
		return err
	}

	if err := con.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	con.Stop()
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (docstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMongoDB:
		logging.Info().Str("uri", logging.RedactURI(cfg.Store.URI)).Msg("connecting to document store")
		store, err := mongodb.Connect(ctx, mongodb.Config{
			URI:            cfg.Store.URI,
			Database:       cfg.Store.Database,
			ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	case config.StoreBackendMemory:
		store := docstore.NewMemory()
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildSettings(cfg *config.Config) (settings.Store, error) {
	switch cfg.Settings.Backend {
	case config.SettingsBackendSQLite:
		return settings.OpenSQLite(cfg.Settings.SQLitePath)
	case config.SettingsBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Settings.RedisAddr,
			Password: cfg.Settings.RedisPassword,
			DB:       cfg.Settings.RedisDB,
		})
		return settings.NewRedisStore(client, cfg.Settings.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Settings.Backend)
	}
}

func buildIdentity(cfg *config.Config) (identity.Provider, error) {
	token := cfg.Identity.Token
	if cfg.Identity.TokenFile != "" {
		raw, err := os.ReadFile(cfg.Identity.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}

	verifier := identity.NewVerifier(identity.Config{
		Secret:     cfg.Identity.Secret,
		Issuer:     cfg.Identity.Issuer,
		StaffRoles: cfg.Identity.StaffRoles,
	})
	return identity.NewTokenProvider(verifier, token), nil
}

// logEvents mirrors the console bus into the debug log so frontends can be
// developed against a live trace.
func logEvents(publisher events.Publisher) {
	logger := logging.Component("event-bus")
	_ = publisher.Subscribe("modwatchd-log", events.Filter{}, func(event *models.Event) {
		logger.Debug().
			Str("type", string(event.Type)).
			Str("entity", string(event.EntityType)).
			Str("id", event.EntityID).
			Msg("event")
	})
}
