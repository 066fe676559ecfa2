package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login EMAIL",
	Short: "Sign in as the station admin",
	Long: `Sign in as the station admin. The password is read from --password,
from $DOORCTL_PASSWORD, or prompted for.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the admin session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
	loginCmd.Flags().String("password", "", "admin password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("password")
	if secret == "" {
		secret = os.Getenv("DOORCTL_PASSWORD")
	}
	if secret == "" {
		var err error
		if secret, err = promptSecret("Password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	resp, err := api.Login(cmd.Context(), args[0], secret)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s.\n", resp.Subject)
	return nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
