// Package cli implements the doorctl operator commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/doorguard/internal/client"
)

var (
	api *client.Client

	baseURL string
	apiKey  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "doorctl",
	Short:         "Operate a doorguard terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if baseURL == "" {
			baseURL = os.Getenv("DOORCTL_URL")
		}
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}
		if apiKey == "" {
			apiKey = os.Getenv("DOORCTL_API_KEY")
		}
		api = client.New(baseURL, apiKey, timeout)
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "terminal base URL (default $DOORCTL_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default $DOORCTL_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "request timeout")
}
