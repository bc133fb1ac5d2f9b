// Package cmd implements the CLI commands for m3uclean.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/m3uclean/internal/config"
	"github.com/jmylchreest/m3uclean/internal/observability"
	"github.com/jmylchreest/m3uclean/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// configReadErr is a config file that was found but could not be parsed.
var configReadErr error

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "m3uclean",
	Short:   "Filter and tidy IPTV M3U playlists",
	Version: version.Short(),
	Long: `m3uclean downloads or reads extended M3U playlists, drops every channel
whose group-title is on an exclusion list, removes stray whitespace before
the comma in #EXTINF lines, and writes the result atomically.

Jobs are described in a YAML config file (m3uclean.yaml) and can be run
once, on a schedule, or ad hoc with the filter command.`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set PersistentPreRunE here to avoid initialization cycle
	// (initLogging references rootCmd.PersistentFlags)
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if configReadErr != nil {
			return configReadErr
		}
		return initLogging()
	}

	// Global flags
	// Note: These flags are NOT bound to viper. Instead, we check if they were
	// explicitly set using Changed() and only then override the config/env values.
	// This preserves the correct priority: CLI flag > env var > config > default
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./m3uclean.yaml, $HOME/.config/m3uclean/m3uclean.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configReadErr = nil

	// Set default configuration values before reading config file
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/m3uclean")
		}
		viper.AddConfigPath("/etc/m3uclean")
		viper.SetConfigType("yaml")
		viper.SetConfigName("m3uclean")
	}

	// Environment variables
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configReadErr = fmt.Errorf("reading config file: %w", err)
		}
	}
}

// initLogging configures the slog logger based on configuration.
// Uses the observability package to ensure sensitive data redaction is applied.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (M3UCLEAN_LOGGING_LEVEL, M3UCLEAN_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, text)
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	// Override with CLI flags only if explicitly set by user.
	// We don't bind flags to viper because viper's flag layer would always
	// override env/config, even when using the flag's default value.
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
		viper.Set("logging.level", level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
		viper.Set("logging.format", format)
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "text"
	}

	logCfg := config.LoggingConfig{
		Level:      strings.ToLower(level),
		Format:     strings.ToLower(format),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}

	// Handle "warning" as an alias for "warn"
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)

	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", slog.String("path", used))
	}

	return nil
}

// bindFlags binds viper keys to the named flags of cmd. It runs for every
// invocation, so bindings survive a viper.Reset between executions.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		mustBindPFlag(key, cmd.Flags().Lookup(name))
	}
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
// This helper ensures lint-compliant error handling for viper.BindPFlag.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("no flag to bind to key %q", key))
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
