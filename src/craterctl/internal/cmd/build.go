package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/craterbuild/crater/src/craterctl/internal/client"
	"github.com/craterbuild/crater/src/craterctl/internal/output"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Manage builds",
}

var buildSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new build",
	RunE:  runBuildSubmit,
}

var buildGetCmd = &cobra.Command{
	Use:   "get <build-id>",
	Short: "Get a build by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildGet,
}

var buildListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent builds",
	RunE:  runBuildList,
}

var buildLogsCmd = &cobra.Command{
	Use:   "logs <build-id>",
	Short: "Get build logs",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildLogs,
}

var buildCancelCmd = &cobra.Command{
	Use:   "cancel <build-id>",
	Short: "Cancel a pending or running build",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildCancel,
}

var buildDocumentCmd = &cobra.Command{
	Use:   "document <build-id>",
	Short: "Download the archived workflow document",
	Long: `Downloads the xz-compressed workflow document archived for a build.
Failed and canceled builds have documents too; they carry the partial
plugin results recorded before the build stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildDocument,
}

func init() {
	buildCmd.AddCommand(buildSubmitCmd)
	buildCmd.AddCommand(buildGetCmd)
	buildCmd.AddCommand(buildListCmd)
	buildCmd.AddCommand(buildLogsCmd)
	buildCmd.AddCommand(buildCancelCmd)
	buildCmd.AddCommand(buildDocumentCmd)

	// Submit flags
	buildSubmitCmd.Flags().String("source", "", "Source URI to build from")
	buildSubmitCmd.Flags().String("ref", "", "Source reference (branch, tag or commit)")
	buildSubmitCmd.Flags().StringSlice("platform", nil, "Target platform (repeatable)")
	buildSubmitCmd.Flags().String("component", "", "Component name for image tagging")
	buildSubmitCmd.Flags().String("version", "", "Component version for image tagging")
	buildSubmitCmd.Flags().String("release", "", "Release qualifier for image tagging")
	buildSubmitCmd.Flags().Bool("scratch", false, "Throwaway build, results not promoted")
	buildSubmitCmd.Flags().Bool("isolated", false, "Build outside the normal release stream")
	_ = buildSubmitCmd.MarkFlagRequired("source")
	_ = buildSubmitCmd.MarkFlagRequired("platform")
	_ = buildSubmitCmd.MarkFlagRequired("component")
	_ = buildSubmitCmd.MarkFlagRequired("version")

	// List flags
	buildListCmd.Flags().Int("limit", 0, "Maximum number of results")

	// Logs flags
	buildLogsCmd.Flags().Int("limit", 0, "Maximum number of log entries")

	// Document flags
	buildDocumentCmd.Flags().StringP("file", "f", "", "Output file (default: <build-id>.json.xz)")
}

func runBuildSubmit(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	source, _ := cmd.Flags().GetString("source")
	ref, _ := cmd.Flags().GetString("ref")
	platforms, _ := cmd.Flags().GetStringSlice("platform")
	component, _ := cmd.Flags().GetString("component")
	version, _ := cmd.Flags().GetString("version")
	release, _ := cmd.Flags().GetString("release")
	scratch, _ := cmd.Flags().GetBool("scratch")
	isolated, _ := cmd.Flags().GetBool("isolated")

	req := &client.SubmitBuildRequest{
		Source:    client.SourceSpec{URI: source, Ref: ref},
		Platforms: platforms,
		Component: component,
		Version:   version,
		Release:   release,
		Scratch:   scratch,
		Isolated:  isolated,
	}

	resp, err := c.SubmitBuild(ctx, req)
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	output.PrintMessage(fmt.Sprintf("Build %s submitted.", resp.ID))
	printBuildDetails(resp)
	return nil
}

func runBuildGet(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.GetBuild(ctx, args[0])
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	printBuildDetails(resp)
	return nil
}

func runBuildList(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	limit, _ := cmd.Flags().GetInt("limit")

	resp, err := c.ListBuilds(ctx, limit)
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	rows := make([][]string, 0, len(resp.Builds))
	for _, b := range resp.Builds {
		nvr := b.Component + "-" + b.Version
		if b.Release != "" {
			nvr += "-" + b.Release
		}
		rows = append(rows, []string{
			b.ID, nvr, b.Platforms, b.Status, b.Phase,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	output.PrintTable([]string{"ID", "BUILD", "PLATFORMS", "STATUS", "PHASE", "CREATED"}, rows)
	return nil
}

func runBuildLogs(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	limit, _ := cmd.Flags().GetInt("limit")

	resp, err := c.GetBuildLogs(ctx, args[0], limit)
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	for _, entry := range resp.Logs {
		line := entry.CreatedAt.Format("15:04:05") + " " + strings.ToUpper(entry.Level)
		if entry.Phase != "" {
			line += " [" + entry.Phase + "]"
		}
		output.PrintMessage(line + " " + entry.Message)
	}
	return nil
}

func runBuildCancel(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.CancelBuild(ctx, args[0])
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	output.PrintMessage(fmt.Sprintf("Build %s is %s.", resp.ID, resp.Status))
	return nil
}

func runBuildDocument(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		file = args[0] + ".json.xz"
	}

	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	n, err := c.DownloadBuildDocument(ctx, args[0], out)
	if err != nil {
		os.Remove(file)
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(map[string]interface{}{"file": file, "bytes": n})
	}

	output.PrintMessage(fmt.Sprintf("Wrote %d bytes to %s.", n, file))
	return nil
}

func printBuildDetails(b *client.Build) {
	rows := [][]string{
		{"ID", b.ID},
		{"Status", b.Status},
		{"Phase", b.Phase},
		{"Component", b.Component},
		{"Version", b.Version},
		{"Release", b.Release},
		{"Platforms", b.Platforms},
		{"Owner", b.Owner},
		{"Created", b.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if b.StartedAt != nil {
		rows = append(rows, []string{"Started", b.StartedAt.Format("2006-01-02 15:04:05")})
	}
	if b.CompletedAt != nil {
		rows = append(rows, []string{"Completed", b.CompletedAt.Format("2006-01-02 15:04:05")})
	}
	if b.DocumentKey != "" {
		rows = append(rows, []string{"Document", b.DocumentKey})
	}
	if b.Error != "" {
		rows = append(rows, []string{"Error", b.Error})
	}
	output.PrintTable([]string{"FIELD", "VALUE"}, rows)
}
