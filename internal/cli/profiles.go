package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/painelportos/ingest/internal/engine"
)

// ProfilesCmd returns the profiles command.
func ProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the registered import profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, prof := range engine.All() {
				var kinds []string
				for _, t := range prof.Tables {
					kinds = append(kinds, t.Kind)
				}
				fmt.Printf("%-12s %s\n", prof.Key, prof.Label)
				fmt.Printf("%-12s %s\n", "", faint("tables: "+strings.Join(kinds, ", ")))
			}
			return nil
		},
	}
}
