package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/lull/internal/logging"
	"github.com/Iron-Ham/lull/internal/persist"
)

// EnvPrefix prefixes environment overrides, e.g. LULL_SESSION_GRACE_PERIOD.
const EnvPrefix = "LULL"

// Config represents the complete lull configuration
type Config struct {
	Session     SessionConfig     `mapstructure:"session"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Activity    ActivityConfig    `mapstructure:"activity"`
}

// SessionConfig controls session lifecycle timing
type SessionConfig struct {
	// GracePeriod is how long an ended session stays resumable (default: 15s).
	// Each session keeps the value it was created with.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// PollInterval is how often expired sessions are collected (default: 1s)
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PersistenceConfig controls where and how sessions are stored
type PersistenceConfig struct {
	// Path is the session file. If empty, defaults to sessions.<format>
	// inside the config directory. Supports ~ for home directory expansion.
	Path string `mapstructure:"path"`
	// Format is the file encoding: "json", "toml", or "yaml" (default: "json")
	Format string `mapstructure:"format"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory. If empty, logs go to stderr.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// ActivityConfig controls the file-activity source used by `lull run --watch`
type ActivityConfig struct {
	// IdleTimeout is how long the watched directory must stay quiet before
	// the session is ended (default: 2s)
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// IgnoreHidden skips files and directories whose name starts with a dot (default: true)
	IgnoreHidden bool `mapstructure:"ignore_hidden"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			GracePeriod:  15 * time.Second,
			PollInterval: time.Second,
		},
		Persistence: PersistenceConfig{
			Path:   "",
			Format: persist.FormatJSON,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Activity: ActivityConfig{
			IdleTimeout:  2 * time.Second,
			IgnoreHidden: true,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Session defaults
	viper.SetDefault("session.grace_period", defaults.Session.GracePeriod)
	viper.SetDefault("session.poll_interval", defaults.Session.PollInterval)

	// Persistence defaults
	viper.SetDefault("persistence.path", defaults.Persistence.Path)
	viper.SetDefault("persistence.format", defaults.Persistence.Format)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Activity defaults
	viper.SetDefault("activity.idle_timeout", defaults.Activity.IdleTimeout)
	viper.SetDefault("activity.ignore_hidden", defaults.Activity.IgnoreHidden)
}

// BindEnv makes every key overridable through LULL_-prefixed environment
// variables, with dots replaced by underscores.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// decodeHook converts duration strings such as "15s" into time.Duration
// fields and rejects unparsable ones instead of zeroing them.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg, decodeHook()); err != nil {
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
		return filepath.Join(xdg, "lull")
	}
	// Fall back to ~/.config/lull
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lull"
	}
	return filepath.Join(home, ".config", "lull")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolvePath returns the session file location. An empty Path yields
// sessions.<ext> in the config directory, where ext follows Format.
func (p *PersistenceConfig) ResolvePath() string {
	path := p.Path
	if path == "" {
		ext := ".json"
		if codec, err := persist.CodecFor(p.Format); err == nil {
			ext = codec.Extension()
		}
		return filepath.Join(ConfigDir(), "sessions"+ext)
	}

	// Expand ~ to home directory
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

// Rotation converts the logging settings to a rotation policy.
func (l *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
	}
}
