package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/painelportos/ingest/internal/cli"
	_ "github.com/painelportos/ingest/internal/profile" // Register all import profiles
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest - spreadsheet importer for the port infrastructure panel",
		Long: `ingest loads the panel's source spreadsheets (process goals and port
concession contracts) into the database, validating every row and
reporting what was created, updated or rejected.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ImportCmd())
	rootCmd.AddCommand(cli.ProfilesCmd())
	rootCmd.AddCommand(cli.MigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
