package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/craterbuild/crater/src/craterctl/internal/output"
	"github.com/spf13/cobra"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Inspect the remote build host pool",
}

var hostListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pool hosts with slot occupancy",
	RunE:  runHostList,
}

var hostLeasesCmd = &cobra.Command{
	Use:   "leases <hostname>",
	Short: "Show the active slot leases on a host",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostLeases,
}

var hostReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Release stale slot leases (admin only)",
	Long: `Releases slot leases older than the given age across all hosts. Use
after an orchestrator crash left slots occupied by builds that no longer
exist.`,
	RunE: runHostReconcile,
}

func init() {
	hostCmd.AddCommand(hostListCmd)
	hostCmd.AddCommand(hostLeasesCmd)
	hostCmd.AddCommand(hostReconcileCmd)

	hostReconcileCmd.Flags().Int("max-age-hours", 24, "Release leases older than this many hours")
}

func runHostList(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.ListHosts(ctx)
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	rows := make([][]string, 0, len(resp.Hosts))
	for _, h := range resp.Hosts {
		rows = append(rows, []string{
			h.Hostname,
			strings.Join(h.Platforms, ","),
			strconv.FormatBool(h.Enabled),
			fmt.Sprintf("%d/%d", h.Occupied, h.Slots),
		})
	}
	output.PrintTable([]string{"HOSTNAME", "PLATFORMS", "ENABLED", "SLOTS"}, rows)
	return nil
}

func runHostLeases(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	resp, err := c.GetHostLeases(ctx, args[0])
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	rows := make([][]string, 0, len(resp.Leases))
	for _, l := range resp.Leases {
		rows = append(rows, []string{
			l.ID, l.Owner, l.AcquiredAt.Format("2006-01-02 15:04:05"),
		})
	}
	output.PrintTable([]string{"LEASE", "OWNER", "ACQUIRED"}, rows)
	return nil
}

func runHostReconcile(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	maxAge, _ := cmd.Flags().GetInt("max-age-hours")

	resp, err := c.Reconcile(ctx, maxAge)
	if err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	output.PrintMessage(fmt.Sprintf("Released %d stale leases.", resp.Released))
	return nil
}
