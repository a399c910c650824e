package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
	Lock          LockConfig          `toml:"lock"`
	Commands      CommandsConfig      `toml:"commands"`
	Gates         []GateConfig        `toml:"gates"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Reaper        ReaperConfig        `toml:"reaper"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	// Repo is the target repository slug (owner/name) the pipeline runs
	// against. Empty means "infer from the local git remote".
	Repo         string `toml:"repo"`
	ProjectRoot  string `toml:"project_root"`
	DatabasePath string `toml:"database_path"`
}

// PipelineConfig holds attempt-loop settings
type PipelineConfig struct {
	MaxAttempts             int     `toml:"max_attempts"`
	MaxCharsPerFeedbackItem int     `toml:"max_chars_per_feedback_item"`
	StepTimeoutMinutes      float64 `toml:"step_timeout_minutes"`
	GateTimeoutMinutes      float64 `toml:"gate_timeout_minutes"`
	BaseBranch              string  `toml:"base_branch"`
	RunDir                  string  `toml:"run_dir"`
}

// LockConfig holds exclusion-coordinator settings
type LockConfig struct {
	SentinelLabel            string  `toml:"sentinel_label"`
	ClaimLabelPrefix         string  `toml:"claim_label_prefix"`
	ServiceLabelPrefix       string  `toml:"service_label_prefix"`
	OperationLabelPrefix     string  `toml:"operation_label_prefix"`
	MaxParallelPerRepo       int     `toml:"max_parallel_per_repo"`
	LockPollSeconds          float64 `toml:"lock_poll_seconds"`
	LockTimeoutMinutes       float64 `toml:"lock_timeout_minutes"`
	LockStaleMinutes         float64 `toml:"lock_stale_minutes"`
	OperationCooldownMinutes float64 `toml:"operation_cooldown_minutes"`
}

// CommandsConfig holds the agent shell command templates. A value of the
// form "$VAR" or "${VAR}" is resolved from the environment at run time.
type CommandsConfig struct {
	Planner  string `toml:"planner"`
	Coder    string `toml:"coder"`
	Reviewer string `toml:"reviewer"`
}

// GateConfig is one named quality-gate command
type GateConfig struct {
	Name    string `toml:"name"`
	Command string `toml:"command"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
	Desktop      bool   `toml:"desktop"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ReaperConfig holds the stale-lock sweep schedule
type ReaperConfig struct {
	Cron string `toml:"cron"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".flowsmith", "flowsmith.db"),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:             3,
			MaxCharsPerFeedbackItem: 2000,
			StepTimeoutMinutes:      30,
			GateTimeoutMinutes:      15,
			BaseBranch:              "main",
			RunDir:                  filepath.Join(home, ".flowsmith", "runs"),
		},
		Lock: LockConfig{
			SentinelLabel:            "agent/running",
			ClaimLabelPrefix:         "agent/claim:",
			ServiceLabelPrefix:       "agent/service:",
			OperationLabelPrefix:     "agent/op:",
			MaxParallelPerRepo:       2,
			LockPollSeconds:          20,
			LockTimeoutMinutes:       180,
			LockStaleMinutes:         360,
			OperationCooldownMinutes: 30,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Reaper: ReaperConfig{
			Cron: "*/15 * * * *",
		},
	}
}

// DefaultConfigPath returns the standard config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flowsmith", "config.toml")
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.ProjectRoot = ExpandPath(cfg.General.ProjectRoot)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Pipeline.RunDir = ExpandPath(cfg.Pipeline.RunDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks option ranges and cross-field constraints
func (c *Config) Validate() error {
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be >= 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.MaxCharsPerFeedbackItem <= 0 {
		return fmt.Errorf("pipeline.max_chars_per_feedback_item must be > 0, got %d", c.Pipeline.MaxCharsPerFeedbackItem)
	}
	if c.Lock.MaxParallelPerRepo < 1 {
		return fmt.Errorf("lock.max_parallel_per_repo must be >= 1, got %d", c.Lock.MaxParallelPerRepo)
	}
	if c.Lock.LockPollSeconds <= 0 {
		return fmt.Errorf("lock.lock_poll_seconds must be > 0, got %g", c.Lock.LockPollSeconds)
	}
	if c.Lock.LockTimeoutMinutes <= 0 {
		return fmt.Errorf("lock.lock_timeout_minutes must be > 0, got %g", c.Lock.LockTimeoutMinutes)
	}
	if c.Lock.LockStaleMinutes <= c.Lock.LockTimeoutMinutes {
		return fmt.Errorf("lock.lock_stale_minutes (%g) must be greater than lock.lock_timeout_minutes (%g)",
			c.Lock.LockStaleMinutes, c.Lock.LockTimeoutMinutes)
	}
	if c.Lock.OperationCooldownMinutes < 0 {
		return fmt.Errorf("lock.operation_cooldown_minutes must be >= 0, got %g", c.Lock.OperationCooldownMinutes)
	}
	for i, g := range c.Gates {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("gates[%d].name is empty", i)
		}
		if strings.TrimSpace(g.Command) == "" {
			return fmt.Errorf("gates[%d].command is empty", i)
		}
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
