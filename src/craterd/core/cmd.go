// Package core provides the command and server functionality for craterd.
package core

import (
	"fmt"
	"os"

	"github.com/craterbuild/crater/src/common/cli"
	"github.com/craterbuild/crater/src/common/logs"
	"github.com/craterbuild/crater/src/common/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log *logs.Logger

	// Configuration file path
	cfgFile string
)

// Linker variables - these are set via ldflags at build time
// They must be initialized as empty strings or literals for ldflags to work
var (
	Version        = "dev"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "craterd",
	Short: "Crater build orchestration server",
	Long: `craterd coordinates container image builds across a pool of remote
build hosts.

It accepts build submissions over a REST API, runs each build through a
plugin pipeline, fans multi-platform builds out to remote workers over SSH
and archives the resulting workflow documents. The same binary also runs in
worker mode on the remote hosts (see "craterd worker").`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// Execute runs the root command
func Execute() {
	// Populate VersionInfo from linker variables
	VersionInfo.Version = Version
	VersionInfo.ReleaseVersion = ReleaseVersion
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Configuration file flag
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "/etc/craterd/craterd.yaml")

	// Server flags
	rootCmd.Flags().IntP("port", "p", 8443, "Port to listen on")
	rootCmd.Flags().StringP("bind", "b", "0.0.0.0", "Address to bind to")

	// Logging flags (using common helper)
	cli.RegisterLogFlags(rootCmd)

	// Database flags
	rootCmd.Flags().String("db-path", "~/.craterd/craterd.db", "Path to persist database on shutdown")

	// Storage flags
	rootCmd.Flags().String("storage-type", "local", "Storage backend type: 'local' or 's3'")
	rootCmd.Flags().String("storage-path", "~/.craterd/documents", "Local storage path (for local backend)")

	// S3 Storage flags
	rootCmd.Flags().String("s3-endpoint", "", "S3-compatible storage endpoint URL")
	rootCmd.Flags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.Flags().String("s3-bucket", "crater-documents", "S3 bucket for archived build documents")
	rootCmd.Flags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.Flags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.Flags().Bool("s3-path-style", true, "Use path-style addressing for S3")

	// Build flags
	rootCmd.Flags().Int("build-workers", 2, "Number of concurrent build pipelines")

	// Host pool and ledger flags. The per-platform host pool itself has no
	// flag shape; it comes from the "hosts" section of the config file.
	rootCmd.Flags().String("ledger-dir", "~/.craterd/ledger", "Shared directory backing the host slot ledger")
	rootCmd.Flags().String("worker-command", "craterd worker", "Remote command that runs one worker build")

	// Auth flags
	rootCmd.Flags().String("admin-token", "", "Access token exchanged for an admin JWT")
	rootCmd.Flags().String("submitter-token", "", "Access token exchanged for a submitter JWT")

	// Bind flags to viper
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.bind", rootCmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("database.path", rootCmd.Flags().Lookup("db-path"))
	_ = viper.BindPFlag("storage.type", rootCmd.Flags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local.path", rootCmd.Flags().Lookup("storage-path"))
	_ = viper.BindPFlag("storage.s3.endpoint", rootCmd.Flags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("storage.s3.region", rootCmd.Flags().Lookup("s3-region"))
	_ = viper.BindPFlag("storage.s3.bucket", rootCmd.Flags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("storage.s3.access_key", rootCmd.Flags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("storage.s3.secret_key", rootCmd.Flags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("storage.s3.path_style", rootCmd.Flags().Lookup("s3-path-style"))
	_ = viper.BindPFlag("build.workers", rootCmd.Flags().Lookup("build-workers"))
	_ = viper.BindPFlag("ledger.dir", rootCmd.Flags().Lookup("ledger-dir"))
	_ = viper.BindPFlag("remote.worker_command", rootCmd.Flags().Lookup("worker-command"))
	_ = viper.BindPFlag("auth.admin_token", rootCmd.Flags().Lookup("admin-token"))
	_ = viper.BindPFlag("auth.submitter_token", rootCmd.Flags().Lookup("submitter-token"))

	// Set defaults
	viper.SetDefault("server.port", 8443)
	viper.SetDefault("server.bind", "0.0.0.0")
	viper.SetDefault("database.path", "~/.craterd/craterd.db")
	viper.SetDefault("database.snapshot_minutes", 15)
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.path", "~/.craterd/documents")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "crater-documents")
	viper.SetDefault("storage.s3.path_style", true)
	viper.SetDefault("build.workers", 2)
	viper.SetDefault("ledger.dir", "~/.craterd/ledger")
	viper.SetDefault("ledger.reconcile_max_age_hours", 24)
	viper.SetDefault("remote.worker_command", "craterd worker")

	// Orchestration defaults
	viper.SetDefault("orchestrate.acquire_timeout_minutes", 30)
	viper.SetDefault("orchestrate.build_timeout_hours", 4)

	// Security defaults
	viper.SetDefault("security.rate_limit.auth_per_min", 10)
	viper.SetDefault("security.rate_limit.api_per_min", 120)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	// Use common config initialization with craterd-specific search paths
	opts := cli.ConfigOptions{
		ConfigName: "craterd",
		ConfigType: "yaml",
		EnvPrefix:  "CRATERD",
		SearchPaths: []string{
			"/etc/craterd",
			"/opt/craterd",
			"~/.craterd",
		},
	}
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(opts); err != nil {
		return err
	}

	// Initialize logger using common helper
	log = cli.InitLogger("craterd")

	return nil
}
