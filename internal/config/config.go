package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "SWIFTRIVER"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "swiftriver.db"
	defaultLogLevel     = "info"

	defaultRiverLifetimeDays = 14
	defaultRiverDropQuota    = 10000
	defaultFeedTTLSeconds    = 300
	defaultMaxIDTTLSeconds   = 90
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	RiverLifetimeDays int
	RiverDropQuota    int
	FeedCacheTTL      time.Duration
	MaxIDCacheTTL     time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("river.lifetime_days", defaultRiverLifetimeDays)
	configViper.SetDefault("river.drop_quota", defaultRiverDropQuota)
	configViper.SetDefault("cache.feed_ttl_seconds", defaultFeedTTLSeconds)
	configViper.SetDefault("cache.max_id_ttl_seconds", defaultMaxIDTTLSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		RiverLifetimeDays: configViper.GetInt("river.lifetime_days"),
		RiverDropQuota:    configViper.GetInt("river.drop_quota"),
		FeedCacheTTL:      time.Duration(configViper.GetInt("cache.feed_ttl_seconds")) * time.Second,
		MaxIDCacheTTL:     time.Duration(configViper.GetInt("cache.max_id_ttl_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.RiverLifetimeDays <= 0 {
		return fmt.Errorf("river.lifetime_days must be positive")
	}
	if c.RiverDropQuota < 0 {
		return fmt.Errorf("river.drop_quota must not be negative")
	}
	if c.FeedCacheTTL <= 0 {
		return fmt.Errorf("cache.feed_ttl_seconds must be positive")
	}
	if c.MaxIDCacheTTL <= 0 {
		return fmt.Errorf("cache.max_id_ttl_seconds must be positive")
	}
	return nil
}
