package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify fanout configuration",
	Long: `View or modify fanout configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  fanout config set orchestration.max_parallel 4
  fanout config set orchestration.pause_threshold 5
  fanout config set tui.enabled false

Valid keys:
  orchestration.sequential           - Run units one at a time (true/false)
  orchestration.max_parallel         - Max concurrent units (0 for unlimited)
  orchestration.unit_timeout_seconds - Per-attempt timeout in seconds
  orchestration.max_retries          - Retries per unit after the first attempt
  orchestration.pause_threshold      - Consecutive failures before pausing (0 disables)
  orchestration.abort_threshold      - Cumulative failures before aborting (0 disables)
  merge.detect_contradictions        - Flag conflicting findings (true/false)
  tui.enabled                        - Use the live dashboard (true/false)
  tui.refresh_ms                     - Dashboard refresh interval in milliseconds
  control.enabled                    - File-based decision channel (true/false)
  control.debounce_ms                - Decision watcher debounce in milliseconds
  logging.enabled                    - Write run logs (true/false)
  logging.level                      - Log level (debug/info/warn/error)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/fanout/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("orchestration:")
	fmt.Printf("  sequential: %v\n", cfg.Orchestration.Sequential)
	fmt.Printf("  max_parallel: %d\n", cfg.Orchestration.MaxParallel)
	fmt.Printf("  unit_timeout_seconds: %d\n", cfg.Orchestration.UnitTimeoutSeconds)
	fmt.Printf("  max_retries: %d\n", cfg.Orchestration.MaxRetries)
	fmt.Printf("  backoff_seconds: %v\n", cfg.Orchestration.BackoffSeconds)
	fmt.Printf("  pause_threshold: %d\n", cfg.Orchestration.PauseThreshold)
	fmt.Printf("  abort_threshold: %d\n", cfg.Orchestration.AbortThreshold)

	fmt.Println("merge:")
	fmt.Printf("  detect_contradictions: %v\n", cfg.Merge.DetectContradictions)

	fmt.Println("tui:")
	fmt.Printf("  enabled: %v\n", cfg.TUI.Enabled)
	fmt.Printf("  refresh_ms: %d\n", cfg.TUI.RefreshMs)

	fmt.Println("control:")
	fmt.Printf("  enabled: %v\n", cfg.Control.Enabled)
	fmt.Printf("  debounce_ms: %d\n", cfg.Control.DebounceMs)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)

	fmt.Println("paths:")
	fmt.Printf("  run_dir: %s\n", cfg.Paths.RunDir)
	fmt.Printf("  control_dir: %s\n", cfg.Paths.ControlDir)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"orchestration.sequential":           "bool",
		"orchestration.max_parallel":         "int",
		"orchestration.unit_timeout_seconds": "int",
		"orchestration.max_retries":          "int",
		"orchestration.pause_threshold":      "int",
		"orchestration.abort_threshold":      "int",
		"merge.detect_contradictions":        "bool",
		"tui.enabled":                        "bool",
		"tui.refresh_ms":                     "int",
		"control.enabled":                    "bool",
		"control.debounce_ms":                "int",
		"logging.enabled":                    "bool",
		"logging.level":                      "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'fanout config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		if key == "logging.level" && !slices.Contains(config.ValidLogLevels(), strings.ToLower(value)) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		typedValue = strings.ToLower(value)
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'fanout config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Fanout Configuration

# Orchestration settings
orchestration:
  # Run units one at a time (forces effective concurrency of 1)
  sequential: false
  # Maximum concurrent units; 0 means unlimited
  max_parallel: 8
  # Per-attempt timeout in seconds
  unit_timeout_seconds: 120
  # Retries per unit after the first attempt
  max_retries: 3
  # Backoff before each retry, in seconds; the last entry repeats
  backoff_seconds: [1, 2, 4]
  # Pause the run after this many consecutive failures (0 disables)
  pause_threshold: 3
  # Abort the run after this many cumulative failures (0 disables)
  abort_threshold: 10

# Result merging
merge:
  # Flag mutually exclusive findings within a category
  detect_contradictions: true

# TUI (terminal user interface) settings
tui:
  enabled: true
  # Dashboard refresh interval in milliseconds
  refresh_ms: 100

# File-based decision channel for headless runs
control:
  enabled: true
  # Decision watcher debounce in milliseconds
  debounce_ms: 250

# Run logging
logging:
  enabled: true
  # debug, info, warn, or error
  level: info

# Paths (empty values use per-project defaults)
paths:
  # Where run artifacts and logs are stored (default: .fanout/runs)
  run_dir: ""
  # Where the decision files live (default: <run_dir>/<run>/control)
  control_dir: ""
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize fanout's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/fanout/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")

	return nil
}
