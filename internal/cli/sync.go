package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <tenant>",
	Short: "Run a full sync for one tenant",
	Long: `Fetch quotes, invoices, jobs, clients and payments for a tenant,
refreshing its access token first if needed, and print the result as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var syncSince string

func init() {
	syncCmd.Flags().StringVar(&syncSince, "since", "", "Only fetch records changed after this RFC 3339 timestamp")
	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	var since time.Time
	if syncSince != "" {
		parsed, err := time.Parse(time.RFC3339, syncSince)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		since = parsed
	}

	a, err := buildApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.runner.SyncTenant(context.Background(), args[0], since)
	if err != nil {
		return fmt.Errorf("sync tenant %s: %w", args[0], err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
