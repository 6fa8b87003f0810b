// Package cli provides common CLI utilities for crater applications using Cobra and Viper.
package cli

import (
	"fmt"
	"strings"

	"github.com/craterbuild/crater/src/common/logs"
	"github.com/craterbuild/crater/src/common/paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigOptions holds options for configuration initialization
type ConfigOptions struct {
	// ConfigFile is an explicit config file path (from the --config flag);
	// when set, the search paths are ignored
	ConfigFile string

	// ConfigName is the config file name without extension
	ConfigName string

	// ConfigType is the config file format (yaml, json, toml)
	ConfigType string

	// EnvPrefix maps environment variables onto config keys
	// (e.g. "CRATERD" makes CRATERD_SERVER_PORT override server.port)
	EnvPrefix string

	// SearchPaths are the directories searched for the config file
	SearchPaths []string
}

// InitConfig wires Viper the standard crater way: explicit file or search
// paths, env-var override, and defaults when no config file exists.
func InitConfig(opts ConfigOptions) error {
	switch {
	case opts.ConfigFile != "":
		viper.SetConfigFile(paths.Expand(opts.ConfigFile))
	default:
		viper.SetConfigName(opts.ConfigName)
		viper.SetConfigType(opts.ConfigType)
		for _, dir := range opts.SearchPaths {
			viper.AddConfigPath(paths.Expand(dir))
		}
	}

	if opts.EnvPrefix != "" {
		viper.SetEnvPrefix(opts.EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
	}

	err := viper.ReadInConfig()
	if _, notFound := err.(viper.ConfigFileNotFoundError); err != nil && !notFound {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// A missing config file is fine; defaults and env vars apply
	return nil
}

// RegisterLogFlags registers common logging flags on a Cobra command
func RegisterLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-output", "auto", "Log output destination (auto, stdout, journald)")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = viper.BindPFlag("log.output", cmd.Flags().Lookup("log-output"))
	_ = viper.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))

	viper.SetDefault("log.output", "auto")
	viper.SetDefault("log.level", "info")
}

// RegisterConfigFlag registers the --config flag on a Cobra command
func RegisterConfigFlag(cmd *cobra.Command, cfgFile *string, defaultPath string) {
	cmd.PersistentFlags().StringVar(cfgFile, "config", "", fmt.Sprintf("config file (default: %s)", defaultPath))
}

// InitLogger creates a logger from the viper log.* keys.
// Should be called after InitConfig.
func InitLogger(prefix string) *logs.Logger {
	return logs.New(logs.Config{
		Output: logs.LogOutput(viper.GetString("log.output")),
		Level:  viper.GetString("log.level"),
		Prefix: prefix,
	})
}

// GetExpandedString gets a string from Viper and expands path prefixes
func GetExpandedString(key string) string {
	return paths.Expand(viper.GetString(key))
}
