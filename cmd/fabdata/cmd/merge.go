package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fablab-opendata/lib/export"
	"fablab-opendata/pipeline/linkeddata"
	"fablab-opendata/pipeline/merge"
	"fablab-opendata/pipeline/record"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	mergeInputs      map[string]*string
	mergeOut         *string
	mergeJSONLD      *bool
	mergeContextFile *string
)

func init() {
	mergeInputs = map[string]*string{}
	for dataset := range datasets {
		flag := dataset
		mergeInputs[dataset] = mergeCmd.Flags().String(
			flag, "",
			fmt.Sprintf("Cleaned %s file to include.", dataset),
		)
	}
	mergeOut = mergeCmd.Flags().String("out", "merged", "Directory to write the merged export to.")
	mergeJSONLD = mergeCmd.Flags().Bool("jsonld", false, "Write a JSON-LD document instead of plain JSON.")
	mergeContextFile = mergeCmd.Flags().String("context", "", "JSON file with the @context for JSON-LD output.")
	rootCmd.AddCommand(mergeCmd)
}

// catalogSummary is what a reservation embeds about its machine or training.
// Cleaned catalog records carry no raw ids, so the uri is the join key and
// the embedded reference.
var catalogSummary = []string{"name", linkeddata.URIField}

var mergeCmd = &cobra.Command{
	Use:   "merge [--machines <file>] [--machine_reservations <file>] ... [--out <dir>]",
	Short: "Merges cleaned datasets into one linked export.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		data := map[string][]record.Record{}
		for dataset, path := range mergeInputs {
			if *path == "" {
				continue
			}
			records, err := readCleanedDataset(*path, dataset)
			if err != nil {
				fatal("failed to read "+dataset, err)
			}
			data[dataset] = records
		}
		if len(data) == 0 {
			fatal("nothing to merge", fmt.Errorf("provide at least one cleaned dataset flag"))
		}

		var unresolved []merge.Unresolved
		link := func(primary, related, field, name string) {
			if data[primary] == nil || data[related] == nil {
				return
			}
			result := merge.Merge(cmd.Context(), data[primary], []merge.Relation{{
				Field:   field,
				Name:    name,
				Index:   merge.Index(data[related], linkeddata.URIField),
				Summary: catalogSummary,
			}})
			data[primary] = result.Records
			unresolved = append(unresolved, result.Unresolved...)
		}
		link("machine_reservations", "machines", "machine_uri", "machine")
		link("training_reservations", "trainings", "training_uri", "training")

		startedAt := time.Now()
		var document any
		if *mergeJSONLD {
			context, err := readContext(*mergeContextFile)
			if err != nil {
				fatal("failed to read jsonld context", err)
			}
			var all []record.Record
			for _, dataset := range datasetNames() {
				all = append(all, data[dataset]...)
			}
			document = linkeddata.ToJSONLD(all, context)
		} else {
			metadata := cfg.Provenance.Metadata(startedAt)
			metadata["data_merged_at"] = startedAt.Format(time.RFC3339)
			document = linkeddata.ToJSON(data, metadata)
		}

		path, err := export.WriteJSON(*mergeOut, "merged", startedAt, document)
		if err != nil {
			fatal("failed to write merged export", err)
		}
		slog.Info("merged datasets", "datasets", len(data), "path", path)

		if len(unresolved) > 0 {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Field", "Key", "Suggestion"})
			for _, u := range unresolved {
				t.AppendRow(table.Row{u.Field, u.Key, u.Suggestion})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		}
	},
}

// readCleanedDataset reads records back out of a cleaned export document. A
// bare array works too, so hand-assembled inputs are accepted.
func readCleanedDataset(path, dataset string) ([]record.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var document struct {
		Data map[string][]record.Record `json:"data"`
	}
	if err := json.Unmarshal(raw, &document); err == nil && document.Data != nil {
		if records, ok := document.Data[dataset]; ok {
			return records, nil
		}
		return nil, fmt.Errorf("%s has no %q dataset", path, dataset)
	}

	var records []record.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}
