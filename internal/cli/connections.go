package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradewatch/tradewatch/internal/models"
)

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List tenant connections",
	RunE:  runConnections,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <tenant>",
	Short: "Delete a tenant's connection and stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisconnect,
}

func init() {
	RootCmd.AddCommand(connectionsCmd)
	RootCmd.AddCommand(disconnectCmd)
}

func runConnections(cmd *cobra.Command, args []string) error {
	a, err := buildApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	conns, err := a.store.ListConnections()
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		cmd.Println("No connections.")
		return nil
	}

	cmd.Printf("%-20s %-12s %-8s %-22s %s\n", "TENANT", "PROVIDER", "VERSION", "EXPIRES", "STATUS")
	for _, conn := range conns {
		expires := "-"
		if conn.ExpiresAt != nil {
			expires = conn.ExpiresAt.UTC().Format(time.RFC3339)
		}
		status := "ok"
		if conn.NeedsReauth() {
			status = fmt.Sprintf("needs reauth (%s)", conn.ReauthReason())
		}
		cmd.Printf("%-20s %-12s %-8d %-22s %s\n", conn.TenantID, conn.Provider, conn.TokenVersion, expires, status)
	}
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	a, err := buildApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.store.DeleteConnection(args[0], models.ProviderFieldServe) {
		return fmt.Errorf("no connection for tenant %s", args[0])
	}
	cmd.Printf("Disconnected %s\n", args[0])
	return nil
}
