package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration
type Config struct {
	API      APIConfig      `yaml:"api"`
	LiveKit  LiveKitConfig  `yaml:"livekit"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

type APIConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	EnableCORS bool   `yaml:"enable_cors"`
}

// LiveKitConfig holds the credentials for the media platform APIs
type LiveKitConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// DispatchConfig controls how outbound calls are dispatched and monitored
type DispatchConfig struct {
	AgentName       string `yaml:"agent_name"`
	CallerIdentity  string `yaml:"caller_identity"`
	SessionPrefix   string `yaml:"session_prefix"`
	PresenceTimeout int    `yaml:"presence_timeout"` // seconds, bound on the participant query
}

type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// overrideWithEnv lets environment variables take precedence over the file
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("CALLAGENT_LIVEKIT_URL"); v != "" {
		cfg.LiveKit.URL = v
	}
	if v := os.Getenv("CALLAGENT_LIVEKIT_API_KEY"); v != "" {
		cfg.LiveKit.APIKey = v
	}
	if v := os.Getenv("CALLAGENT_LIVEKIT_API_SECRET"); v != "" {
		cfg.LiveKit.APISecret = v
	}
	if v := os.Getenv("CALLAGENT_DB_USERNAME"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("CALLAGENT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CALLAGENT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CALLAGENT_DB_DATABASE"); v != "" {
		cfg.Database.Database = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Dispatch.AgentName == "" {
		cfg.Dispatch.AgentName = "outbound-caller"
	}
	if cfg.Dispatch.CallerIdentity == "" {
		cfg.Dispatch.CallerIdentity = "callagent"
	}
	if cfg.Dispatch.SessionPrefix == "" {
		cfg.Dispatch.SessionPrefix = "call"
	}
	if cfg.Dispatch.PresenceTimeout <= 0 {
		cfg.Dispatch.PresenceTimeout = 5
	}
}

// Address returns the full listen address for the API server
func (a APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// PresenceQueryTimeout returns the bound for a single participant query
func (d DispatchConfig) PresenceQueryTimeout() time.Duration {
	return time.Duration(d.PresenceTimeout) * time.Second
}

// DSN returns the Data Source Name for MySQL
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}
