package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Reference ReferenceConfig `mapstructure:"reference"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Records   RecordsConfig   `mapstructure:"records"`
	Import    ImportConfig    `mapstructure:"import"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Outputs   OutputsConfig   `mapstructure:"outputs"`
}

type ReferenceConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,http_url"`
	RequestDelay  time.Duration `mapstructure:"request_delay" validate:"gte=0"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryAttempts uint          `mapstructure:"retry_attempts" validate:"lte=10"`
	PageLimit     int           `mapstructure:"page_limit" validate:"gte=1,lte=1000"`
}

type CacheConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type RecordsConfig struct {
	DatabasePath string `mapstructure:"database_path" validate:"required"`
}

type ImportConfig struct {
	AutoResolve       bool   `mapstructure:"auto_resolve"`
	DefaultResolution string `mapstructure:"default_resolution" validate:"oneof=replace duplicate skip merge"`
	MergeStrategy     string `mapstructure:"merge_strategy" validate:"oneof=preferImported preferExisting newest"`
}

type TemplatesConfig struct {
	SheetTemplate string `mapstructure:"sheet_template" validate:"omitempty,file"`
}

type OutputsConfig struct {
	SheetDirectory string `mapstructure:"sheet_directory" validate:"required"`
}

// DefaultDataDirectory is used for the cache and the record database when
// neither DNDCB_DATA_DIR nor explicit paths are set.
func DefaultDataDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dndcb"
	}
	return filepath.Join(home, ".local", "share", "dndcb")
}

func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dndcb")
	}

	v.SetDefault("data_directory", DefaultDataDirectory())
	v.SetDefault("reference.base_url", "https://api.open5e.com")
	v.SetDefault("reference.request_delay", 100*time.Millisecond)
	v.SetDefault("reference.timeout", 15*time.Second)
	v.SetDefault("reference.retry_attempts", 0)
	v.SetDefault("reference.page_limit", 100)
	v.SetDefault("import.auto_resolve", false)
	v.SetDefault("import.default_resolution", "skip")
	v.SetDefault("import.merge_strategy", "preferImported")
	v.SetDefault("outputs.sheet_directory", filepath.Join("outputs", "sheets"))

	if err := v.BindEnv("reference.base_url", "DNDCB_API_BASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DNDCB_API_BASE_URL environment variable: %w", err)
	}
	if err := v.BindEnv("data_directory", "DNDCB_DATA_DIR"); err != nil {
		return nil, fmt.Errorf("failed to bind DNDCB_DATA_DIR environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	// Storage paths follow the data directory unless they are set explicitly.
	dataDir := v.GetString("data_directory")
	v.SetDefault("cache.path", filepath.Join(dataDir, "cache.bbolt"))
	v.SetDefault("records.database_path", filepath.Join(dataDir, "characters.db"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	return &cfg, nil
}
