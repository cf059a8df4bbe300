package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/painelportos/ingest/internal/engine"
	"github.com/painelportos/ingest/internal/store"
)

// ImportCmd returns the import command.
func ImportCmd() *cobra.Command {
	var (
		profileKey string
		dryRun     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Import a spreadsheet into the panel database",
		Long: `Import parses an Excel workbook, validates every row against the
selected profile and upserts the result in a single transaction.
Rows with data problems are rejected and listed in the report; the
rest of the workbook still goes through.

Examples:
  ingest import --profile processes metas-2024.xlsx
  ingest import --profile ports --dry-run contratos.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.Size() > cfg.Import.MaxFileSize {
				return fmt.Errorf("%s is %d bytes, over the %d byte limit", path, info.Size(), cfg.Import.MaxFileSize)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			var st engine.Store
			if dryRun {
				st = store.NewMemory()
			} else {
				pool, err := openPool(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer pool.Close()
				st = store.NewPostgres(pool)
			}

			importer := engine.New(st, engine.Options{
				Timeout:        cfg.Import.Timeout,
				CapexTolerance: decimal.NewFromFloat(cfg.Import.CapexTolerance),
			}, nil)

			report, err := importer.Run(cmd.Context(), profileKey, data)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(report, dryRun)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileKey, "profile", "p", "", "import profile key (see \"ingest profiles\")")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without touching the database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.MarkFlagRequired("profile")

	return cmd
}
