// Package cli wires the cobra command tree.
package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// GlobalFlags contains flags shared by all commands.
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
}

var globalFlags GlobalFlags

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:   "tradewatch",
	Short: "TradeWatch - field-service business record ingestion",
	Long: `TradeWatch connects tenant accounts on a field-service platform,
keeps their OAuth credentials fresh, and ingests quotes, invoices, jobs,
clients and payments through the platform's rate-limited GraphQL API.

Use "tradewatch [command] --help" for more information about a command.`,
}

// InitRoot initializes the root command with global flags.
func InitRoot() {
	configPath := os.Getenv("TRADEWATCH_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	dbPath := os.Getenv("TRADEWATCH_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/tradewatch.db"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", dbPath, "Path to SQLite database")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")

	RootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of TradeWatch",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("TradeWatch %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

var version = "0.1.0"
