// Package config holds the run configuration, with optional YAML file
// loading layered under the CLI flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of run parameters. YAML keys mirror the flag names.
type Config struct {
	Wordlist       string `yaml:"wordlist"`
	Workers        int    `yaml:"workers"`
	TimeoutSeconds int    `yaml:"timeout"`
	Output         string `yaml:"output"`
	DNSOnly        bool   `yaml:"dns_only"`
	HTTPOnly       bool   `yaml:"http_only"`
	KeepHost       bool   `yaml:"keep_host"`
	DNSServer      string `yaml:"dns_server"`
	UserAgent      string `yaml:"user_agent"`
	LogLevel       string `yaml:"log_level"`

	Database      string `yaml:"database"`
	API           bool   `yaml:"api"`
	APIPort       int    `yaml:"api_port"`
	Takeover      bool   `yaml:"takeover"`
	ZoneTransfer  bool   `yaml:"zone_transfer"`
	SlackWebhook  string `yaml:"slack_webhook"`
	Screenshots   bool   `yaml:"screenshots"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Wordlist:       "/usr/share/seclists/Discovery/DNS/subdomains-top1million-5000.txt",
		Workers:        100,
		TimeoutSeconds: 5,
		UserAgent:      "subhunt",
		LogLevel:       "info",
		APIPort:        8080,
		ScreenshotDir:  "./screenshots",
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate rejects parameter combinations the run cannot start with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the per-probe timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
