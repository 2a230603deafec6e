package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Music     MusicConfig     `toml:"music"`
	Library   LibraryConfig   `toml:"library"`
	Recommend RecommendConfig `toml:"recommend"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DatabaseConfig contains catalog store configuration
type DatabaseConfig struct {
	Path   string `toml:"path"`
	Driver string `toml:"driver"` // "sqlite3" (cgo) or "sqlite" (pure Go)
}

// MusicConfig contains music library configuration
type MusicConfig struct {
	LibraryPath      string   `toml:"library_path"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
	RescanSchedule   string   `toml:"rescan_schedule"` // cron expression, empty disables
	PageSize         int      `toml:"page_size"`
}

// LibraryConfig contains query service configuration
type LibraryConfig struct {
	SearchHistoryLimit   int `toml:"search_history_limit"`
	SearchHistoryKeep    int `toml:"search_history_keep"` // rows kept by the pruning job
	FolderCacheTTLSecond int `toml:"folder_cache_ttl_seconds"`
}

// RecommendConfig contains daily mix configuration
type RecommendConfig struct {
	DailyMixSize int  `toml:"daily_mix_size"`
	SeedByDay    bool `toml:"seed_by_day"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Environment variables that override file values.
const (
	EnvDBPath      = "LEGATO_DB_PATH"
	EnvDBDriver    = "LEGATO_DB_DRIVER"
	EnvLibraryPath = "LEGATO_LIBRARY_PATH"
	EnvLogLevel    = "LEGATO_LOG_LEVEL"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:   "./legato.db",
			Driver: "sqlite3",
		},
		Music: MusicConfig{
			LibraryPath:      "./music",
			SupportedFormats: []string{".flac", ".mp3", ".wav", ".m4a"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
			RescanSchedule:   "@every 6h",
			PageSize:         100,
		},
		Library: LibraryConfig{
			SearchHistoryLimit:   20,
			SearchHistoryKeep:    500,
			FolderCacheTTLSecond: 300,
		},
		Recommend: RecommendConfig{
			DailyMixSize: 25,
			SeedByDay:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies overrides
// from the environment and an optional .env file next to the working directory.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs from path when it exists. Variables that
// are already set in the process environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with LEGATO_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvDBDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvLibraryPath); v != "" {
		c.Music.LibraryPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Legato Music Catalog Configuration
# Edit the values below to customize where the catalog lives and how the
# music library is indexed.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	validDrivers := map[string]bool{
		"sqlite3": true, "sqlite": true,
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database driver: %s (must be sqlite3 or sqlite)", c.Database.Driver)
	}

	if c.Music.LibraryPath == "" {
		return fmt.Errorf("music library path cannot be empty")
	}
	if len(c.Music.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Music.PageSize < 1 {
		return fmt.Errorf("music page size must be at least 1")
	}
	if c.Music.RescanSchedule != "" {
		if _, err := cron.ParseStandard(c.Music.RescanSchedule); err != nil {
			return fmt.Errorf("invalid rescan schedule %q: %w", c.Music.RescanSchedule, err)
		}
	}

	if c.Library.SearchHistoryLimit < 1 {
		return fmt.Errorf("search history limit must be at least 1")
	}
	if c.Library.SearchHistoryKeep < c.Library.SearchHistoryLimit {
		return fmt.Errorf("search history keep (%d) must not be below the visible limit (%d)",
			c.Library.SearchHistoryKeep, c.Library.SearchHistoryLimit)
	}
	if c.Library.FolderCacheTTLSecond < 0 {
		return fmt.Errorf("folder cache ttl cannot be negative")
	}

	if c.Recommend.DailyMixSize < 1 {
		return fmt.Errorf("daily mix size must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Music.SupportedFormats {
		if strings.EqualFold(supported, format) {
			return true
		}
	}
	return false
}
