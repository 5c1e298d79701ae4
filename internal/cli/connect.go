package cli

import (
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <tenant>",
	Short: "Start the OAuth connect flow for a tenant",
	Long: `Print the provider authorization URL for a tenant. Open it in a
browser, authorize the account, and the provider will redirect to the
configured callback, which completes the connection.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	RootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	a, err := buildApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	authURL, state := a.connector.AuthURL(args[0])
	cmd.Printf("Authorization URL for %s:\n\n  %s\n\nstate: %s\n", args[0], authURL, state)
	cmd.Println("\nNote: the state is held in this process; run the serve command in another terminal so the callback can complete.")
	return nil
}
