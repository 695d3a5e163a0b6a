package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string            `yaml:"listen_addr"`
	Policy      PolicyConfig      `yaml:"policy"`
	DecisionLog DecisionLogConfig `yaml:"decision_log"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type PolicyConfig struct {
	Path string `yaml:"path"`
	// RequireSource disables the built-in fallback table.
	RequireSource bool `yaml:"require_source"`
}

type DecisionLogConfig struct {
	// Driver is one of none, memory, file, sqlite, postgres.
	Driver        string `yaml:"driver"`
	Dir           string `yaml:"dir"`
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Policy.RequireSource && c.Policy.Path == "" {
		return fmt.Errorf("policy.path is required when policy.require_source=true")
	}

	dl := c.DecisionLog
	switch dl.Driver {
	case "", "none", "memory":
	case "file":
		if dl.Dir == "" {
			return fmt.Errorf("decision_log.dir is required when decision_log.driver=file")
		}
	case "sqlite", "postgres":
		if dl.DSN == "" {
			return fmt.Errorf("decision_log.dsn is required when decision_log.driver=%s", dl.Driver)
		}
	default:
		return fmt.Errorf("unsupported decision_log.driver: %s", dl.Driver)
	}
	if dl.RetentionDays < 0 {
		return fmt.Errorf("decision_log.retention_days must be >= 0")
	}
	if dl.PruneSchedule != "" {
		if _, err := cron.ParseStandard(dl.PruneSchedule); err != nil {
			return fmt.Errorf("decision_log.prune_schedule: %w", err)
		}
	}

	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	return nil
}
