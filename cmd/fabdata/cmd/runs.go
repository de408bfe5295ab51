package cmd

import (
	"fmt"
	"os"
	"time"

	"fablab-opendata/lib/runlog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runsLimit *int

func init() {
	runsLimit = runsCmd.Flags().Int("limit", 20, "Maximum runs to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs <dataset>",
	Short: "Prints the export run history of a dataset.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		if cfg.Journal == "" {
			fatal("no journal configured", fmt.Errorf(`set "journal" in fabdata.json5`))
		}

		journal, err := runlog.Open(cfg.Journal)
		if err != nil {
			fatal("failed to open run journal", err)
		}
		defer journal.Close()

		runs, err := journal.History(cmd.Context(), args[0], *runsLimit)
		if err != nil {
			fatal("failed to read run history", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Finished", "Mode", "Processed", "Skipped", "Output"})
		for _, run := range runs {
			t.AppendRow(table.Row{
				run.FinishedAt.Format(time.RFC3339),
				run.Mode,
				run.Processed,
				run.Skipped,
				run.OutputPath,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
