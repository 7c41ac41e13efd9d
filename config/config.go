package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConnectTimeoutMs = 30000
	DefaultReadTimeoutMs    = 60000
	DefaultCacheSize        = 512
	DefaultEnvironment      = "AUTOMATION"
)

// Config holds everything needed to talk to one registry project.
type Config struct {
	ServerURL        string `yaml:"server_url" toml:"server_url"`
	APIKey           string `yaml:"api_key" toml:"api_key"`
	ProjectID        string `yaml:"project_id" toml:"project_id"`
	Environment      string `yaml:"environment" toml:"environment"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms" toml:"connect_timeout_ms"`
	ReadTimeoutMs    int    `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	LogLevel         string `yaml:"log_level" toml:"log_level"`
	CacheSize        int    `yaml:"cache_size" toml:"cache_size"`
	Pushgateway      string `yaml:"pushgateway" toml:"pushgateway"`
}

func Default() *Config {
	return &Config{
		ConnectTimeoutMs: DefaultConnectTimeoutMs,
		ReadTimeoutMs:    DefaultReadTimeoutMs,
		CacheSize:        DefaultCacheSize,
		LogLevel:         "info",
	}
}

// Load reads defaults, then the optional file at path, then EZTEST_* environment
// variables. The result is not validated.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.readFile(path); err != nil {
			return nil, err
		}
	}
	c.applyEnv(os.LookupEnv)
	return c, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("decode toml config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode yaml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&c.ServerURL, "EZTEST_SERVER_URL")
	set(&c.APIKey, "EZTEST_API_KEY")
	set(&c.ProjectID, "EZTEST_PROJECT_ID")
	set(&c.Environment, "EZTEST_ENVIRONMENT")
	set(&c.LogLevel, "EZTEST_LOG_LEVEL")
}

// Validate normalizes the config in place and reports every problem at once.
func (c *Config) Validate() error {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.Environment = strings.TrimSpace(c.Environment)

	var err error
	if c.ServerURL == "" {
		err = multierr.Append(err, fmt.Errorf("server url cannot be empty"))
	}
	if c.APIKey == "" {
		err = multierr.Append(err, fmt.Errorf("api key cannot be empty"))
	}
	if c.ProjectID == "" {
		err = multierr.Append(err, fmt.Errorf("project id cannot be empty"))
	}
	if c.ConnectTimeoutMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("connect timeout must be greater than 0"))
	}
	if c.ReadTimeoutMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("read timeout must be greater than 0"))
	}
	return err
}

func (c *Config) APIBaseURL() string {
	return c.ServerURL + "/api/"
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// RunEnvironment is the environment label used when a report carries none.
func (c *Config) RunEnvironment() string {
	if c.Environment == "" {
		return DefaultEnvironment
	}
	return c.Environment
}

// ForProject returns a copy of c scoped to another project.
func (c *Config) ForProject(projectID string) *Config {
	cp := *c
	cp.ProjectID = projectID
	return &cp
}
