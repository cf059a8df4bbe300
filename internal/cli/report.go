package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/painelportos/ingest/internal/engine"
)

var (
	greenNum  = color.New(color.FgGreen).SprintfFunc()
	yellowNum = color.New(color.FgYellow).SprintfFunc()
	redNum    = color.New(color.FgRed).SprintfFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

// printReport renders the import report for a terminal.
func printReport(r *engine.Report, dryRun bool) {
	header := fmt.Sprintf("Import %s", r.Profile)
	if dryRun {
		header += " (dry run, nothing persisted)"
	}
	fmt.Println(header)
	fmt.Println(faint(fmt.Sprintf("run %s, %s", r.RunID, r.Duration.Round(time.Millisecond))))
	fmt.Println()

	fmt.Printf("%-28s %8s %8s %8s %8s\n", "Table", "Rows", "Created", "Updated", "Rejected")
	fmt.Println(strings.Repeat("-", 64))
	for _, t := range r.Tables {
		fmt.Printf("%-28s %8d %8s %8s %8s\n",
			t.Label, t.Rows,
			greenNum("%d", t.Created),
			yellowNum("%d", t.Updated),
			redNum("%d", t.Rejected))
	}
	fmt.Println(strings.Repeat("-", 64))
	fmt.Printf("%-28s %8s %8s %8s %8s\n", "Total", "",
		greenNum("%d", r.TotalCreated),
		yellowNum("%d", r.TotalUpdated),
		redNum("%d", r.TotalRejected))

	if len(r.Rejections) > 0 {
		fmt.Println()
		fmt.Println("Rejected rows:")
		for _, rej := range r.Rejections {
			line := fmt.Sprintf("  %s row %d: %s", rej.Table, rej.RowIndex, rej.Reason)
			if rej.Detail != "" {
				line += " (" + rej.Detail + ")"
			}
			fmt.Println(redNum("%s", line))
		}
	}
}
