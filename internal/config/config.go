package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"pawcare/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig               `yaml:"app"`
	Backend    BackendConfig           `yaml:"backend"`
	Domains    map[string]DomainConfig `yaml:"domains"`
	Redis      RedisConfig             `yaml:"redis"`
	Database   DatabaseConfig          `yaml:"database"`
	Sessions   SessionsConfig          `yaml:"sessions"`
	Refresh    RefreshConfig           `yaml:"refresh"`
	API        APIConfig               `yaml:"api"`
	Monitoring MonitoringConfig        `yaml:"monitoring"`
	Logging    LoggingConfig           `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type BackendConfig struct {
	BaseURL         string          `yaml:"base_url"`
	AuthMode        string          `yaml:"auth_mode"` // bearer | query
	Token           string          `yaml:"token"`
	TokenParam      string          `yaml:"token_param"`
	TimeoutSeconds  int             `yaml:"timeout_seconds"`
	CacheTTLSeconds int             `yaml:"cache_ttl_seconds"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// DomainConfig overrides the built-in lifecycle spec of one booking domain.
// Empty fields keep the defaults.
type DomainConfig struct {
	Palette          string                    `yaml:"palette"`
	OptimisticCancel *bool                     `yaml:"optimistic_cancel"`
	CancelStatus     string                    `yaml:"cancel_status"`
	RescheduleStatus *string                   `yaml:"reschedule_status"`
	Fetch            *EndpointConfig           `yaml:"fetch"`
	List             *EndpointConfig           `yaml:"list"`
	Actions          map[string]EndpointConfig `yaml:"actions"`
}

type EndpointConfig struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	IDIn   string `yaml:"id_in"` // query | path | body
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// RetentionDays сколько дней хранить записи журнала, 0 = всегда
	RetentionDays int          `yaml:"retention_days"`
	Backup        BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type SessionsConfig struct {
	TTLSeconds          int `yaml:"ttl_seconds"`
	ActionLimit         int `yaml:"action_limit"`
	ActionWindowSeconds int `yaml:"action_window_seconds"`
}

type RefreshConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	HTTP      APIHTTPConfig   `yaml:"http"`
	Auth      APIAuthConfig   `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}

	switch c.Backend.AuthMode {
	case "bearer", "query":
	default:
		return fmt.Errorf("unknown backend auth_mode %q", c.Backend.AuthMode)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return ValidateDomains(c.Domains)
}

func ValidateDomains(domains map[string]DomainConfig) error {
	for name, d := range domains {
		endpoints := make(map[string]EndpointConfig, len(d.Actions)+2)
		for action, ep := range d.Actions {
			endpoints["actions."+action] = ep
		}
		if d.Fetch != nil {
			endpoints["fetch"] = *d.Fetch
		}
		if d.List != nil {
			endpoints["list"] = *d.List
		}
		for key, ep := range endpoints {
			if ep.Path == "" {
				return fmt.Errorf("domain %s: %s has empty path", name, key)
			}
			switch strings.ToLower(ep.IDIn) {
			case "", "query", "path", "body":
			default:
				return fmt.Errorf("domain %s: %s has invalid id_in %q", name, key, ep.IDIn)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pawcare"
	}
	if c.Backend.AuthMode == "" {
		c.Backend.AuthMode = "bearer"
	}
	if c.Backend.TokenParam == "" {
		c.Backend.TokenParam = "token"
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = models.BackendTimeout
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
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
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Sessions defaults
	if c.Sessions.TTLSeconds == 0 {
		c.Sessions.TTLSeconds = models.DefaultSessionTTL
	}
	if c.Sessions.ActionLimit == 0 {
		c.Sessions.ActionLimit = models.ActionLimit
	}
	if c.Sessions.ActionWindowSeconds == 0 {
		c.Sessions.ActionWindowSeconds = models.ActionLimitWindow
	}
	if c.Refresh.Schedule == "" {
		c.Refresh.Schedule = models.DefaultRefreshSchedule
	}

	if c.Database.Backup.Enabled {
		if c.Database.Backup.Schedule == "" {
			c.Database.Backup.Schedule = "@daily"
		}
		if c.Database.Backup.StoragePath == "" {
			c.Database.Backup.StoragePath = "./data/backups"
		}
	}
}
