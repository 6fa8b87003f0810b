package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/craterbuild/crater/src/craterctl/internal/config"
	"github.com/craterbuild/crater/src/craterctl/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the craterd server",
	Long: `Exchanges a configured access token for a short-lived JWT and stores it
locally. The access token is prompted for when not given as a flag.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringP("token", "t", "", "Access token to exchange")
	loginCmd.Flags().String("subject", "", "Subject recorded as build owner (defaults to server-side client address)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	accessToken, _ := cmd.Flags().GetString("token")
	subject, _ := cmd.Flags().GetString("subject")

	if accessToken == "" {
		accessToken = os.Getenv("CRATERCTL_TOKEN")
	}
	if accessToken == "" {
		fmt.Print("Access token: ")
		byteToken, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read access token: %w", err)
		}
		fmt.Println()
		accessToken = string(byteToken)
	}

	c := getClient()
	ctx := context.Background()

	resp, err := c.ExchangeToken(ctx, accessToken, subject)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	serverURL := viper.GetString("server.url")
	tokenData := &config.TokenData{
		Token:     resp.Token,
		Role:      resp.Role,
		ServerURL: serverURL,
		Subject:   subject,
	}

	if err := config.SaveToken(tokenData); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(map[string]string{
			"message": "Login successful",
			"role":    resp.Role,
			"server":  serverURL,
		})
	}

	output.PrintMessage(fmt.Sprintf("Logged in as %s on %s", resp.Role, serverURL))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := config.ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(map[string]string{"message": "Logged out"})
	}

	output.PrintMessage("Logged out successfully.")
	return nil
}
