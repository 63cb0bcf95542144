package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultNamespace         = "events"
	DefaultSettingsRefresh   = 15 * time.Second
	DefaultChainID           = 1
	DefaultTargetsPerCycle   = 5
	DefaultPollIntervalMS    = 10000
	DefaultMaxBlocksPerQuery = 1000
)

// Config holds the YAML configuration.
type Config struct {
	Version   int               `yaml:"version"`
	Global    GlobalConfig      `yaml:"global"`
	Defaults  Defaults          `yaml:"defaults"`
	Endpoints map[string]string `yaml:"endpoints"`
}

type GlobalConfig struct {
	DBDriver        string  `yaml:"db_driver"`
	DBPath          string  `yaml:"db_path"`
	DBURL           string  `yaml:"db_url"`
	Namespace       string  `yaml:"namespace"`
	APIKey          string  `yaml:"api_key"`
	SettingsRefresh string  `yaml:"settings_refresh"`
	RPCRateLimit    float64 `yaml:"rpc_rate_limit"`
	RPCBurst        int     `yaml:"rpc_burst"`
	Parallelism     int     `yaml:"parallelism"`
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	TracingInsecure bool    `yaml:"tracing_insecure"`
	TracingSample   float64 `yaml:"tracing_sample_ratio"`
}

// Defaults seed the process-wide poll settings when the store holds none.
type Defaults struct {
	ChainID         int64 `yaml:"chain_id"`
	TargetsPerCycle int   `yaml:"targets_per_cycle"`
	PollIntervalMS  int64 `yaml:"poll_interval_ms"`
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Global.DBDriver == "" {
		c.Global.DBDriver = DriverSQLite
	}
	c.Global.DBDriver = strings.ToLower(c.Global.DBDriver)
	if c.Global.Namespace == "" {
		c.Global.Namespace = DefaultNamespace
	}
	if c.Global.Parallelism <= 0 {
		c.Global.Parallelism = 1
	}
	if c.Global.RPCRateLimit > 0 && c.Global.RPCBurst <= 0 {
		c.Global.RPCBurst = 1
	}
	if c.Global.TracingEndpoint != "" && c.Global.TracingSample == 0 {
		c.Global.TracingSample = 1
	}
	if c.Defaults.ChainID == 0 {
		c.Defaults.ChainID = DefaultChainID
	}
	if c.Defaults.TargetsPerCycle == 0 {
		c.Defaults.TargetsPerCycle = DefaultTargetsPerCycle
	}
	if c.Defaults.PollIntervalMS == 0 {
		c.Defaults.PollIntervalMS = DefaultPollIntervalMS
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for name, url := range c.Endpoints {
		if strings.TrimSpace(name) == "" {
			return errors.New("endpoints: empty event name")
		}
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("endpoints: url is required for %s", name)
		}
	}
	return nil
}

func (g *GlobalConfig) Validate() error {
	switch g.DBDriver {
	case DriverSQLite:
		if g.DBPath == "" {
			return errors.New("db_path is required for sqlite")
		}
	case DriverPostgres:
		if g.DBURL == "" {
			return errors.New("db_url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported db_driver: %s", g.DBDriver)
	}
	if g.Namespace == "" {
		return errors.New("namespace is required")
	}
	if g.RPCRateLimit < 0 {
		return errors.New("rpc_rate_limit must not be negative")
	}
	if g.TracingSample < 0 || g.TracingSample > 1 {
		return errors.New("tracing_sample_ratio must be between 0 and 1")
	}
	if _, err := g.RefreshInterval(); err != nil {
		return err
	}
	return nil
}

// RefreshInterval parses settings_refresh, falling back to the default period.
func (g *GlobalConfig) RefreshInterval() (time.Duration, error) {
	if g.SettingsRefresh == "" {
		return DefaultSettingsRefresh, nil
	}
	d, err := time.ParseDuration(g.SettingsRefresh)
	if err != nil {
		return 0, fmt.Errorf("parse settings_refresh %q: %w", g.SettingsRefresh, err)
	}
	if d <= 0 {
		return 0, errors.New("settings_refresh must be positive")
	}
	return d, nil
}

func (d *Defaults) Validate() error {
	if d.ChainID < 0 {
		return errors.New("chain_id must be positive")
	}
	if d.TargetsPerCycle < 0 {
		return errors.New("targets_per_cycle must be positive")
	}
	if d.PollIntervalMS < 0 {
		return errors.New("poll_interval_ms must be positive")
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
