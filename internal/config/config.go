package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/fanout/internal/orchestrator"
)

// Config represents the complete fanout configuration
type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Merge         MergeConfig         `mapstructure:"merge"`
	TUI           TUIConfig           `mapstructure:"tui"`
	Control       ControlConfig       `mapstructure:"control"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Paths         PathsConfig         `mapstructure:"paths"`
}

// OrchestrationConfig tunes how work units are dispatched and retried
type OrchestrationConfig struct {
	// Sequential runs one unit at a time regardless of max_parallel
	Sequential bool `mapstructure:"sequential"`
	// MaxParallel caps concurrently executing units (default: 8, 0 = unlimited)
	MaxParallel int `mapstructure:"max_parallel"`
	// UnitTimeoutSeconds bounds each attempt, not the whole unit (default: 120, 0 = disabled)
	UnitTimeoutSeconds int `mapstructure:"unit_timeout_seconds"`
	// MaxRetries is the number of re-attempts after the first try, so a
	// unit executes at most max_retries+1 times (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffSeconds is the wait between attempts, indexed by attempt number.
	// Retries past the end of the list reuse the final entry (default: [1, 2, 4])
	BackoffSeconds []int `mapstructure:"backoff_seconds"`
	// PauseThreshold pauses the run after this many consecutive unit failures (default: 3, 0 = disabled)
	PauseThreshold int `mapstructure:"pause_threshold"`
	// AbortThreshold aborts the run after this many cumulative unit failures (default: 10, 0 = disabled)
	AbortThreshold int `mapstructure:"abort_threshold"`
}

// MergeConfig controls how per-category findings are combined
type MergeConfig struct {
	// DetectContradictions flags opposing findings within a category (default: true)
	DetectContradictions bool `mapstructure:"detect_contradictions"`
}

// TUIConfig controls the terminal UI behavior
type TUIConfig struct {
	// Enabled renders the live progress UI; when false the plain line
	// renderer is used (default: true)
	Enabled bool `mapstructure:"enabled"`
	// RefreshMs is how often the progress view polls for a new snapshot
	// (default: 100, min: 16, max: 1000)
	RefreshMs int `mapstructure:"refresh_ms"`
}

// ControlConfig controls the file-based decision channel used when a
// paused run needs an operator answer and no TUI is attached
type ControlConfig struct {
	// Enabled watches the control directory for decision files (default: true)
	Enabled bool `mapstructure:"enabled"`
	// DebounceMs is how long to wait for file writes to settle before
	// reading a decision (default: 250)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// LoggingConfig controls run logging behavior
type LoggingConfig struct {
	// Enabled controls whether run logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// PathsConfig controls where fanout stores run data
type PathsConfig struct {
	// RunDir is the directory where run logs and reports are written.
	// If empty, defaults to ".fanout/runs" relative to the working
	// directory. Supports ~ for home directory expansion.
	RunDir string `mapstructure:"run_dir"`
	// ControlDir is the directory watched for decision files.
	// If empty, defaults to "control" under the resolved run directory.
	ControlDir string `mapstructure:"control_dir"`
}

// UnitTimeout returns the per-attempt timeout as a time.Duration (0 means disabled)
func (c *OrchestrationConfig) UnitTimeout() time.Duration {
	return time.Duration(c.UnitTimeoutSeconds) * time.Second
}

// Backoff returns the backoff schedule as time.Durations
func (c *OrchestrationConfig) Backoff() []time.Duration {
	if len(c.BackoffSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.BackoffSeconds))
	for i, s := range c.BackoffSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// Refresh returns the TUI poll interval as a time.Duration
func (c *TUIConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// Debounce returns the control-file settle window as a time.Duration
func (c *ControlConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Options compiles the orchestration section into runtime options
func (c *Config) Options() orchestrator.Options {
	return orchestrator.Options{
		Sequential:     c.Orchestration.Sequential,
		MaxParallel:    c.Orchestration.MaxParallel,
		UnitTimeout:    c.Orchestration.UnitTimeout(),
		MaxRetries:     c.Orchestration.MaxRetries,
		Backoff:        c.Orchestration.Backoff(),
		PauseThreshold: c.Orchestration.PauseThreshold,
		AbortThreshold: c.Orchestration.AbortThreshold,
	}
}

// ResolveRunDir returns the resolved run directory path.
// If RunDir is empty, it returns the default path relative to baseDir.
// If RunDir starts with ~, it expands to the user's home directory.
// If RunDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveRunDir(baseDir string) string {
	if p.RunDir == "" {
		return filepath.Join(baseDir, ".fanout", "runs")
	}

	path := p.RunDir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// If relative path, resolve relative to baseDir
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// ResolveControlDir returns the resolved control directory path.
// If ControlDir is empty, it defaults to "control" under runDir;
// a relative path is also resolved relative to runDir.
func (p *PathsConfig) ResolveControlDir(runDir string) string {
	if p.ControlDir == "" {
		return filepath.Join(runDir, "control")
	}
	if !filepath.IsAbs(p.ControlDir) {
		return filepath.Join(runDir, p.ControlDir)
	}
	return p.ControlDir
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			Sequential:         false,
			MaxParallel:        8,
			UnitTimeoutSeconds: 120,
			MaxRetries:         3,
			BackoffSeconds:     []int{1, 2, 4},
			PauseThreshold:     3,
			AbortThreshold:     10,
		},
		Merge: MergeConfig{
			DetectContradictions: true,
		},
		TUI: TUIConfig{
			Enabled:   true,
			RefreshMs: 100,
		},
		Control: ControlConfig{
			Enabled:    true,
			DebounceMs: 250,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{
			RunDir:     "", // Empty means use default: .fanout/runs
			ControlDir: "", // Empty means use default: <run_dir>/control
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Orchestration defaults
	viper.SetDefault("orchestration.sequential", defaults.Orchestration.Sequential)
	viper.SetDefault("orchestration.max_parallel", defaults.Orchestration.MaxParallel)
	viper.SetDefault("orchestration.unit_timeout_seconds", defaults.Orchestration.UnitTimeoutSeconds)
	viper.SetDefault("orchestration.max_retries", defaults.Orchestration.MaxRetries)
	viper.SetDefault("orchestration.backoff_seconds", defaults.Orchestration.BackoffSeconds)
	viper.SetDefault("orchestration.pause_threshold", defaults.Orchestration.PauseThreshold)
	viper.SetDefault("orchestration.abort_threshold", defaults.Orchestration.AbortThreshold)

	// Merge defaults
	viper.SetDefault("merge.detect_contradictions", defaults.Merge.DetectContradictions)

	// TUI defaults
	viper.SetDefault("tui.enabled", defaults.TUI.Enabled)
	viper.SetDefault("tui.refresh_ms", defaults.TUI.RefreshMs)

	// Control defaults
	viper.SetDefault("control.enabled", defaults.Control.Enabled)
	viper.SetDefault("control.debounce_ms", defaults.Control.DebounceMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Paths defaults
	viper.SetDefault("paths.run_dir", defaults.Paths.RunDir)
	viper.SetDefault("paths.control_dir", defaults.Paths.ControlDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fanout")
	}
	// Fall back to ~/.config/fanout
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fanout"
	}
	return filepath.Join(home, ".config", "fanout")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
