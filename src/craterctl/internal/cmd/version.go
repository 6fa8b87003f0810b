package cmd

import (
	"context"
	"fmt"

	"github.com/craterbuild/crater/src/craterctl/internal/output"
	"github.com/spf13/cobra"
)

// VersionResponse matches the server's /v1/version response
type VersionResponse struct {
	Version        string `json:"version"`
	ReleaseVersion string `json:"release_version"`
	BuildDate      string `json:"build_date"`
	GitCommit      string `json:"git_commit"`
	GoVersion      string `json:"go_version"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Shows the craterctl client version and optionally the server version.`,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("server", false, "Also show server version")
}

func runVersion(cmd *cobra.Command, args []string) error {
	showServer, _ := cmd.Flags().GetBool("server")

	var serverInfo *VersionResponse
	var serverErr error
	if showServer {
		if err := initConfig(); err != nil {
			return err
		}
		serverInfo, serverErr = fetchServerVersion()
	}

	if getOutputFormat() == "json" {
		result := map[string]interface{}{
			"client": VersionInfo.Map(),
		}
		switch {
		case serverErr != nil:
			result["server_error"] = serverErr.Error()
		case serverInfo != nil:
			result["server"] = serverInfo
		}
		return output.PrintJSON(result)
	}

	fmt.Printf("Client: %s\n", VersionInfo.Full())
	switch {
	case serverErr != nil:
		fmt.Printf("\nServer: error: %v\n", serverErr)
	case serverInfo != nil:
		fmt.Printf("\nServer: %s\n", serverInfo.Version)
		fmt.Printf("  Version:    %s\n", serverInfo.ReleaseVersion)
		fmt.Printf("  Build Date: %s\n", serverInfo.BuildDate)
		fmt.Printf("  Git Commit: %s\n", serverInfo.GitCommit)
		fmt.Printf("  Go Version: %s\n", serverInfo.GoVersion)
	}

	return nil
}

func fetchServerVersion() (*VersionResponse, error) {
	var resp VersionResponse
	if err := getClient().Get(context.Background(), "/v1/version", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
