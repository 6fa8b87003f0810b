// Package cmd implements the craterctl commands.
package cmd

import (
	"os"

	"github.com/craterbuild/crater/src/common/cli"
	"github.com/craterbuild/crater/src/common/version"
	"github.com/craterbuild/crater/src/craterctl/internal/client"
	"github.com/craterbuild/crater/src/craterctl/internal/config"
	"github.com/craterbuild/crater/src/craterctl/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Configuration file path
	cfgFile string

	// Output format (json or table)
	outputFormat string

	// API client instance
	apiClient *client.Client
)

// Linker variables - set via ldflags at build time
var (
	Version        = "dev"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "craterctl",
	Short: "Crater CLI client",
	Long: `craterctl is the command-line client for the craterd build
orchestration server.

It submits builds, tracks their progress, retrieves logs and archived
workflow documents and inspects the remote host pool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config init for version command without --server flag
		if cmd.Name() == "version" && !cmd.Flags().Changed("server") {
			return nil
		}
		return initConfig()
	},
}

// Execute runs the root command
func Execute() {
	VersionInfo.Version = Version
	VersionInfo.ReleaseVersion = ReleaseVersion
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err)
		os.Exit(1)
	}
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "~/.craterctl/craterctl.yaml")

	rootCmd.PersistentFlags().StringP("server", "s", "", "craterd server URL (default: http://localhost:8443)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")

	cli.RegisterLogFlags(rootCmd)

	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))

	viper.SetDefault("server.url", "http://localhost:8443")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(hostCmd)
}

func initConfig() error {
	return cli.InitConfig(cli.ConfigOptions{
		ConfigFile:  cfgFile,
		ConfigName:  "craterctl",
		ConfigType:  "yaml",
		EnvPrefix:   "CRATERCTL",
		SearchPaths: []string{"/etc/craterctl", "~/.craterctl"},
	})
}

// getClient returns the API client, creating it on first use with the
// stored login token attached when one exists.
func getClient() *client.Client {
	if apiClient == nil {
		apiClient = client.New(viper.GetString("server.url"))
		if tokenData, err := config.LoadToken(); err == nil {
			apiClient.Token = tokenData.Token
		}
	}
	return apiClient
}

// getOutputFormat returns the current output format
func getOutputFormat() string {
	return outputFormat
}
