package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gardiens/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app" toml:"app"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Redis      RedisConfig      `yaml:"redis" toml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring" toml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Engine     EngineConfig     `yaml:"engine" toml:"engine"`
	Drafts     DraftsConfig     `yaml:"drafts" toml:"drafts"`
	Exports    ExportConfig     `yaml:"exports" toml:"exports"`
}

// EngineConfig holds the global pricing and availability settings.
type EngineConfig struct {
	WorkdayHours            float64 `yaml:"workday_hours" toml:"workday_hours"`
	BufferBeforeMinutes     int     `yaml:"buffer_before_minutes" toml:"buffer_before_minutes"`
	BufferAfterMinutes      int     `yaml:"buffer_after_minutes" toml:"buffer_after_minutes"`
	SlotStepMinutes         int     `yaml:"slot_step_minutes" toml:"slot_step_minutes"`
	FullDayToleranceMinutes int     `yaml:"full_day_tolerance_minutes" toml:"full_day_tolerance_minutes"`
	CommissionPercent       float64 `yaml:"commission_percent" toml:"commission_percent"`
	MaxBookingDays          int     `yaml:"max_booking_days" toml:"max_booking_days"`
	CommitTimeoutSeconds    int     `yaml:"commit_timeout_seconds" toml:"commit_timeout_seconds"`
}

type DraftsConfig struct {
	TTLMinutes        int `yaml:"ttl_minutes" toml:"ttl_minutes"`
	RateLimitRequests int `yaml:"rate_limit_requests" toml:"rate_limit_requests"`
	RateLimitWindow   int `yaml:"rate_limit_window" toml:"rate_limit_window"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled" toml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http" toml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc" toml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	Port       int  `yaml:"port" toml:"port"`
	Reflection bool `yaml:"reflection" toml:"reflection"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled" toml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key" toml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra" toml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys" toml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key" toml:"key"`
	Extra       string   `yaml:"extra" toml:"extra"`
	Name        string   `yaml:"name" toml:"name"`
	Permissions []string `yaml:"permissions" toml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path" toml:"path"`
	// AutoRebuild regenerates saved month workbooks after booking changes.
	AutoRebuild bool `yaml:"auto_rebuild" toml:"auto_rebuild"`
}

type AppConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Environment string `yaml:"environment" toml:"environment"`
	Version     string `yaml:"version" toml:"version"`
}

type DatabaseConfig struct {
	Path   string       `yaml:"path" toml:"path"`
	Backup BackupConfig `yaml:"backup" toml:"backup"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	Interval      string `yaml:"interval" toml:"interval"`
	StoragePath   string `yaml:"storage_path" toml:"storage_path"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
}

type RedisConfig struct {
	Address  string `yaml:"address" toml:"address"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	PoolSize int    `yaml:"pool_size" toml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled" toml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port" toml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	Output   string `yaml:"output" toml:"output"`
	FilePath string `yaml:"file_path" toml:"file_path"`
}

// Load reads a YAML or TOML config file. Environment variables referenced
// as ${VAR} are expanded first; a .env file next to the process is loaded
// when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if _, err := toml.Decode(expandedData, &config); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Engine.WorkdayHours <= 0 || c.Engine.WorkdayHours > 24 {
		return fmt.Errorf("engine.workday_hours must be in (0, 24], got %v", c.Engine.WorkdayHours)
	}
	if c.Engine.BufferBeforeMinutes < 0 || c.Engine.BufferAfterMinutes < 0 {
		return errors.New("engine buffers must not be negative")
	}
	if c.Engine.CommissionPercent < 0 {
		return errors.New("engine.commission_percent must not be negative")
	}
	if c.Engine.FullDayToleranceMinutes < 0 || float64(c.Engine.FullDayToleranceMinutes) >= c.Engine.WorkdayHours*60 {
		return errors.New("engine.full_day_tolerance_minutes must be shorter than a workday")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Engine defaults
	if c.Engine.WorkdayHours == 0 {
		c.Engine.WorkdayHours = models.DefaultWorkdayHours
	}
	if c.Engine.SlotStepMinutes == 0 {
		c.Engine.SlotStepMinutes = models.DefaultSlotStepMinutes
	}
	if c.Engine.MaxBookingDays == 0 {
		c.Engine.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Engine.CommitTimeoutSeconds == 0 {
		c.Engine.CommitTimeoutSeconds = 10
	}

	if c.Drafts.TTLMinutes == 0 {
		c.Drafts.TTLMinutes = models.DefaultDraftTTL
	}
	if c.Drafts.RateLimitRequests == 0 {
		c.Drafts.RateLimitRequests = models.RateLimitRequests
	}
	if c.Drafts.RateLimitWindow == 0 {
		c.Drafts.RateLimitWindow = models.RateLimitWindow
	}

	if c.Database.Backup.Enabled && c.Database.Backup.StoragePath == "" {
		c.Database.Backup.StoragePath = "backups"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
