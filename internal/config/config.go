package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"clipforge/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
	Assist    AssistConfig    `yaml:"assist"`
	Storage   StorageConfig   `yaml:"storage"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Logging   logger.Config   `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// PipelineConfig points at the production pipeline backend that
// executes generation jobs
type PipelineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ProvidersConfig struct {
	ComfyUI ComfyUIConfig `yaml:"comfyui"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
}

type ComfyUIConfig struct {
	// RefreshInterval controls how often cached server info is refetched
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// AssistConfig drives the prompt-enhancement client; an empty api_key
// disables the feature
type AssistConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type StorageConfig struct {
	DataDir         string `yaml:"data_dir"`
	SettingsBackend string `yaml:"settings_backend"` // "file" or "redis"
}

type TrackerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollRetryMax int           `yaml:"poll_retry_max"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Providers.OpenAI.APIKey = apiKey
		if cfg.Assist.APIKey == "" {
			cfg.Assist.APIKey = apiKey
		}
	}
	if apiKey := os.Getenv("ASSIST_API_KEY"); apiKey != "" {
		cfg.Assist.APIKey = apiKey
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Database.Redis.Password = password
	}
	if password := os.Getenv("MYSQL_PASSWORD"); password != "" {
		cfg.Database.MySQL.Password = password
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Timeout == 0 {
		cfg.Pipeline.Timeout = 60 * time.Second
	}
	if cfg.Providers.ComfyUI.RefreshInterval == 0 {
		cfg.Providers.ComfyUI.RefreshInterval = 30 * time.Second
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SettingsBackend == "" {
		cfg.Storage.SettingsBackend = "file"
	}
	if cfg.Tracker.PollInterval == 0 {
		cfg.Tracker.PollInterval = 3 * time.Second
	}
	if cfg.Tracker.PollRetryMax == 0 {
		cfg.Tracker.PollRetryMax = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
