package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/lull/internal/config"
	"github.com/Iron-Ham/lull/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "lull",
	Short: "Group bursts of activity into sessions",
	Long: `lull groups intermittent bursts of activity into sessions. A session
starts on the first activity, survives gaps shorter than its grace period,
and completes once activity has been absent for longer than that.

Sessions are persisted so a restart does not lose them, and every completed
session is reported exactly once.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/lull/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/lull")
		viper.AddConfigPath(".")
	}

	// LULL_SESSION_GRACE_PERIOD overrides session.grace_period
	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.Rotation())
}
