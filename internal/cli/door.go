package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Run face recognition at the door",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := api.OpenDoor(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		if resp.Distance != nil {
			fmt.Printf("  distance %.3f after %d frames\n", *resp.Distance, resp.FramesAttempted)
		} else {
			fmt.Printf("  %d frames, %d unknown\n", resp.FramesAttempted, resp.UnknownFrames)
		}
		if resp.Error != "" {
			fmt.Fprintln(os.Stderr, "  camera:", resp.Error)
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the most recent access log entries",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the terminal status indicator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := api.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", s.Phase, s.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd, logsCmd, statusCmd)
	logsCmd.Flags().Int("limit", 10, "number of entries")
}

func runLogs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	resp, err := api.Logs(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if resp.Total == 0 {
		fmt.Println("No access log entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tNAME\tRESULT\tIMAGE")
	fmt.Fprintln(w, "----\t----\t------\t-----")
	for _, e := range resp.Logs {
		result := "denied"
		if e.Success {
			result = "entered"
		}
		when := e.Time
		if t, err := time.Parse(time.RFC3339, e.Time); err == nil {
			when = t.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", when, e.Name, result, e.ImageURL)
	}
	return w.Flush()
}
