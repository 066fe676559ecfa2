package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/doorguard/pkg/dto"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll NAME",
	Short: "Capture and register a new identity (admin)",
	Long: `Capture face images of the person in front of the camera and register
them under NAME. Progress is shown while the terminal captures.

Example:
  doorctl enroll Alice`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

var identitiesCmd = &cobra.Command{
	Use:     "identities",
	Aliases: []string{"list"},
	Short:   "List enrolled identities",
	Args:    cobra.NoArgs,
	RunE:    runIdentities,
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an identity and its images (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := api.DeleteIdentity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (%d encodings).\n", resp.Name, resp.Removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd, identitiesCmd, deleteCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := args[0]

	watchCtx, stopWatch := context.WithCancel(cmd.Context())
	defer stopWatch()

	bar := newEnrollBar()
	watching, err := api.WatchStatus(watchCtx, bar.update)
	if err != nil {
		// progress is cosmetic; enroll without it
		fmt.Fprintln(os.Stderr, "progress unavailable:", err)
	}

	resp, err := api.Enroll(cmd.Context(), name)
	stopWatch()
	if watching != nil {
		<-watching
	}
	bar.finish()
	if err != nil {
		return err
	}

	fmt.Printf("%s registered: %d images, %d encodings.\n", resp.Name, resp.Captured, resp.Encodings)
	return nil
}

// enrollBar draws capture progress from terminal status updates.
type enrollBar struct {
	bar *progressbar.ProgressBar
}

func newEnrollBar() *enrollBar {
	return &enrollBar{}
}

func (b *enrollBar) update(s dto.StatusResponse) {
	if s.Phase != "enrolling" || s.Total <= 0 {
		return
	}
	if b.bar == nil {
		b.bar = progressbar.NewOptions(s.Total,
			progressbar.OptionSetDescription("📸 Capturing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}
	if s.Current > 0 {
		_ = b.bar.Set(s.Current)
	}
	b.bar.Describe(s.Message)
}

func (b *enrollBar) finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func runIdentities(cmd *cobra.Command, args []string) error {
	resp, err := api.Identities(cmd.Context())
	if err != nil {
		return err
	}

	if resp.Total == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tENCODINGS")
	fmt.Fprintln(w, "----\t---------")
	for _, id := range resp.Identities {
		fmt.Fprintf(w, "%s\t%d\n", id.Name, id.Encodings)
	}
	return w.Flush()
}
