package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/lull/internal/config"
	"github.com/Iron-Ham/lull/internal/persist"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify lull configuration",
	Long: `View or modify lull configuration.

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
  lull config set session.grace_period 30s
  lull config set persistence.format yaml

Valid keys:
  session.grace_period     - How long an ended session stays resumable
  session.poll_interval    - How often expired sessions are collected
  persistence.path         - Session file location
  persistence.format       - Session file encoding (json, toml, yaml)
  logging.level            - debug, info, warn, error
  logging.dir              - Log directory (empty logs to stderr)
  logging.max_size_mb      - Log size before rotation
  logging.max_backups      - Rotated log files to keep
  logging.compress         - Gzip rotated logs (true/false)
  activity.idle_timeout    - Quiet time that ends a watched session
  activity.ignore_hidden   - Skip dot files when watching (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/lull/config.yaml with all available options.`,
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
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "session:")
	fmt.Fprintf(out, "  grace_period: %s\n", cfg.Session.GracePeriod)
	fmt.Fprintf(out, "  poll_interval: %s\n", cfg.Session.PollInterval)

	fmt.Fprintln(out, "persistence:")
	fmt.Fprintf(out, "  path: %s\n", cfg.Persistence.ResolvePath())
	fmt.Fprintf(out, "  format: %s\n", cfg.Persistence.Format)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	if cfg.Logging.Dir != "" {
		fmt.Fprintf(out, "  dir: %s\n", cfg.Logging.Dir)
	} else {
		fmt.Fprintf(out, "  dir: (stderr)\n")
	}
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)

	fmt.Fprintln(out, "activity:")
	fmt.Fprintf(out, "  idle_timeout: %s\n", cfg.Activity.IdleTimeout)
	fmt.Fprintf(out, "  ignore_hidden: %v\n", cfg.Activity.IgnoreHidden)

	return nil
}

type keyType int

const (
	keyString keyType = iota
	keyBool
	keyInt
	keyDuration
)

var settableKeys = map[string]keyType{
	"session.grace_period":   keyDuration,
	"session.poll_interval":  keyDuration,
	"persistence.path":       keyString,
	"persistence.format":     keyString,
	"logging.level":          keyString,
	"logging.dir":            keyString,
	"logging.max_size_mb":    keyInt,
	"logging.max_backups":    keyInt,
	"logging.compress":       keyBool,
	"activity.idle_timeout":  keyDuration,
	"activity.ignore_hidden": keyBool,
}

// parseSetting converts a command-line value to the type stored under key.
// Durations are written back as strings so the file stays readable.
func parseSetting(key, value string) (any, error) {
	kt, ok := settableKeys[key]
	if !ok {
		keys := make([]string, 0, len(settableKeys))
		for k := range settableKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown configuration key: %s\nValid keys: %s", key, strings.Join(keys, ", "))
	}

	switch kt {
	case keyBool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case keyInt:
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	case keyDuration:
		d, err := cast.ToDurationE(value)
		if err != nil || !strings.ContainsAny(value, "hmsuµn") {
			return nil, fmt.Errorf("invalid value for %s: expected a duration such as 15s", key)
		}
		return d.String(), nil
	default:
		if key == "persistence.format" {
			if _, err := persist.CodecFor(value); err != nil {
				return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
					key, value, strings.Join(persist.ValidFormats(), ", "))
			}
		}
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, value)
	if _, err := config.Load(); err != nil {
		return err
	}

	configFile := config.ConfigFile()
	if viper.ConfigFileUsed() != "" {
		configFile = viper.ConfigFileUsed()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, value)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)

	return nil
}

const configTemplate = `# lull configuration

# Session lifecycle timing
session:
  # How long an ended session can still be resumed. Each session keeps
  # the grace period it was created with.
  grace_period: 15s
  # How often expired sessions are collected and reported
  poll_interval: 1s

# Where sessions are stored between runs
persistence:
  # Session file (default: sessions.<format> next to this file)
  path: ""
  # File encoding: json, toml, yaml
  format: json

# Structured logging
logging:
  # debug, info, warn, error
  level: info
  # Log directory; empty logs to stderr
  dir: ""
  max_size_mb: 10
  max_backups: 3
  compress: false

# File activity source for 'lull run --watch'
activity:
  # Quiet time after the last write that ends the session
  idle_timeout: 2s
  # Skip files and directories starting with a dot
  ignore_hidden: true
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'lull config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize lull's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/lull/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_SESSION_GRACE_PERIOD)\n", config.EnvPrefix, config.EnvPrefix)

	return nil
}
