// Package cmd provides the CLI commands for callguard.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vinayprograms/callguard/config"
	"github.com/vinayprograms/callguard/logging"
)

var rootCmd = &cobra.Command{
	Use:   "callguard",
	Short: "callguard - rate limiting and retry for outbound API calls",
	Long: `callguard paces and retries calls to rate-limited external APIs.

Guards, limits and retry policies are declared in a TOML file:

  [limits.github]
  max_calls = 5000
  period = "1h"

  [retry.default]
  max_attempts = 4
  initial_delay = "500ms"
  backoff_multiplier = 2.0

  [guards.github]
  limit = "github"
  retry = "default"

Configuration:
  The config file is given with --config or CALLGUARD_CONFIG.
  The log level is taken from --log-level, CALLGUARD_LOG_LEVEL, or the
  file's log_level, in that order.

Commands:
  validate    Check a config file and list its guards
  simulate    Drive a guard with synthetic load and report the outcome
  chat        Send one prompt to a configured LLM provider
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initViper)
	rootCmd.PersistentFlags().String("config", "callguard.toml", "config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initViper() {
	// CALLGUARD_CONFIG, CALLGUARD_LOG_LEVEL
	viper.SetEnvPrefix("CALLGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and builds a logger at the effective level.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Level()
	if override := viper.GetString("log_level"); override != "" {
		if level, err = logging.ParseLevel(override); err != nil {
			return nil, nil, err
		}
	}

	logger := logging.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	return cfg, logger, nil
}
