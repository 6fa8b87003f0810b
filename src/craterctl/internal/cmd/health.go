package cmd

import (
	"context"

	"github.com/craterbuild/crater/src/craterctl/internal/output"
	"github.com/spf13/cobra"
)

// HealthResponse matches the server's /v1/health response
type HealthResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage,omitempty"`
	Timestamp string `json:"timestamp"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long:  `Checks the health status of the craterd server.`,
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	c := getClient()
	ctx := context.Background()

	var resp HealthResponse
	if err := c.Get(ctx, "/v1/health", &resp); err != nil {
		return err
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(resp)
	}

	output.PrintTable(
		[]string{"FIELD", "VALUE"},
		[][]string{
			{"Status", resp.Status},
			{"Storage", resp.Storage},
			{"Timestamp", resp.Timestamp},
		},
	)
	return nil
}
