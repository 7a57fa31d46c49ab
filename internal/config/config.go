package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Storage   StorageConfig             `yaml:"storage"`
	Live      LiveConfig                `yaml:"live"`
	Runner    RunnerConfig              `yaml:"runner"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Vault     VaultConfig               `yaml:"vault"`
	Auth      AuthConfig                `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the storage driver.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory, local, postgres or redis
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
}

// LiveConfig tunes the act status stream.
type LiveConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RunnerConfig struct {
	MaxParallel int         `yaml:"max_parallel"` // per job; 0 means unlimited
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig controls how often a model call is retried when it fails
// before producing any output.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// ProviderConfig holds language model provider settings.
type ProviderConfig struct {
	Type   string `yaml:"type"` // openai or gemini
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type VaultConfig struct {
	Key string `yaml:"key"` // 32-byte key, hex or base64
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Driver: "local",
			Dir:    "./data",
		},
		Live: LiveConfig{
			PollInterval: 500 * time.Millisecond,
			Timeout:      20 * time.Minute,
		},
		Runner: RunnerConfig{
			Retry: RetryConfig{
				MaxRetries:    2,
				InitialDelay:  time.Second,
				MaxDelay:      30 * time.Second,
				BackoffFactor: 2,
			},
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Load reads a YAML configuration file at path and applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault loads path (config.yaml when empty). A missing file yields the
// defaults plus environment overrides. A .env file in the working directory
// is loaded first when present.
func LoadDefault(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GISELLE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("GISELLE_DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("GISELLE_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("GISELLE_VAULT_KEY"); v != "" {
		cfg.Vault.Key = v
	}
	if v := os.Getenv("GISELLE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	envKey("openai", "openai", "OPENAI_API_KEY", cfg)
	envKey("gemini", "gemini", "GEMINI_API_KEY", cfg)
}

// envKey fills a provider API key from the environment, registering the
// provider when the config file does not mention it.
func envKey(name, typ, env string, cfg *Config) {
	key := os.Getenv(env)
	if key == "" {
		return
	}
	p, ok := cfg.Providers[name]
	if !ok {
		p = ProviderConfig{Type: typ}
	}
	if p.APIKey == "" {
		p.APIKey = key
	}
	cfg.Providers[name] = p
}
