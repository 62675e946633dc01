package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Impact rule names accepted in impact.rule.
const (
	RulePassthrough     = "passthrough"
	RuleCompletionShare = "completion_share"
	RuleCompletedHours  = "completed_hours"
)

// Config models jobline.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" json:"addr"`
		BasePath    string   `yaml:"base_path" json:"base_path"`
		CORSOrigins []string `yaml:"cors_origins" json:"cors_origins,omitempty"`
	} `yaml:"server" json:"server"`
	Auth struct {
		JWTSecretEnv string `yaml:"jwt_secret_env" json:"jwt_secret_env"`
	} `yaml:"auth" json:"auth"`
	Impact struct {
		Rule        string  `yaml:"rule" json:"rule"`
		HoursWeight float64 `yaml:"hours_weight" json:"hours_weight"`
	} `yaml:"impact" json:"impact"`
	Log struct {
		Mode string `yaml:"mode" json:"mode"`
	} `yaml:"log" json:"log"`
	Store struct {
		BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
	} `yaml:"store" json:"store"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with jl config generate", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for _, o := range c.Server.CORSOrigins {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("config.server.cors_origins contains an empty origin")
		}
	}
	switch c.Impact.Rule {
	case RulePassthrough, RuleCompletionShare, RuleCompletedHours:
	default:
		return fmt.Errorf("config.impact.rule must be one of %s, %s, %s", RulePassthrough, RuleCompletionShare, RuleCompletedHours)
	}
	if math.IsNaN(c.Impact.HoursWeight) || math.IsInf(c.Impact.HoursWeight, 0) || c.Impact.HoursWeight < 0 {
		return fmt.Errorf("config.impact.hours_weight must be a non-negative number")
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("config.log.mode must be dev or prod")
	}
	if c.Store.BusyTimeoutMS < 0 {
		return fmt.Errorf("config.store.busy_timeout_ms must not be negative")
	}
	return nil
}

// JWTSecret resolves the signing secret from the configured environment variable.
func (c *Config) JWTSecret() string {
	env := c.Auth.JWTSecretEnv
	if env == "" {
		env = "JOBLINE_JWT_SECRET"
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "jobline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  cors_origins: []

auth:
  # name of the environment variable holding the HS256 secret
  jwt_secret_env: JOBLINE_JWT_SECRET

impact:
  # passthrough | completion_share | completed_hours
  rule: completion_share
  hours_weight: 1

log:
  mode: dev

store:
  busy_timeout_ms: 5000
`
