package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DownloadsConfig holds download engine configuration.
type DownloadsConfig struct {
	// Dir is where downloaded map files are written.
	Dir string `mapstructure:"dir"`
	// CacheDir is where thumbnail images are cached.
	CacheDir string `mapstructure:"cache_dir"`
	// Concurrency bounds simultaneous map transfers.
	Concurrency int `mapstructure:"concurrency"`
	// ThumbnailConcurrency bounds the thumbnail prefetch pool. Thumbnails
	// are small, so this runs higher than the map limit.
	ThumbnailConcurrency int `mapstructure:"thumbnail_concurrency"`
}

// CatalogConfig holds remote catalog configuration.
type CatalogConfig struct {
	ManifestURL     string `mapstructure:"manifest_url"`
	MapsBaseURL     string `mapstructure:"maps_base_url"`
	PreviewsBaseURL string `mapstructure:"previews_base_url"`
	// RefreshCron schedules the automatic manifest refresh.
	RefreshCron string `mapstructure:"refresh_cron"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// A .env next to the binary is a convenience for development.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mapstream")
	}

	v.SetEnvPrefix("MAPSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; defaults + env vars are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8484)

	v.SetDefault("database.path", "./data/mapstream.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.compress", true)

	v.SetDefault("downloads.dir", "./data/maps")
	v.SetDefault("downloads.cache_dir", "./data/cache")
	v.SetDefault("downloads.concurrency", 4)
	v.SetDefault("downloads.thumbnail_concurrency", 8)

	v.SetDefault("catalog.manifest_url", "https://raw.githubusercontent.com/wtfseanscool/kog-maps/main/manifest.json")
	v.SetDefault("catalog.maps_base_url", "https://raw.githubusercontent.com/wtfseanscool/kog-maps/main")
	v.SetDefault("catalog.previews_base_url", "https://raw.githubusercontent.com/wtfseanscool/kog-maps-previews/main")
	v.SetDefault("catalog.refresh_cron", "0 * * * *")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
