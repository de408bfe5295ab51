package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"fablab-opendata/lib/export"
	"fablab-opendata/lib/runlog"
	"fablab-opendata/pipeline/anonymize"
	"fablab-opendata/pipeline/clean"
	"fablab-opendata/pipeline/linkeddata"
	"fablab-opendata/pipeline/record"
	"fablab-opendata/pipeline/redact"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// datasets maps the dataset name used in filenames and output documents to
// its entity type.
var datasets = map[string]string{
	"users":                 redact.EntityUser,
	"machines":              redact.EntityMachine,
	"trainings":             redact.EntityTraining,
	"machine_reservations":  redact.EntityReservationMachine,
	"training_reservations": redact.EntityReservationTraining,
}

var (
	cleanIn              *string
	cleanOut             *string
	cleanMode            *string
	cleanKeyEnv          *string
	cleanTimestamps      *string
	cleanIncludeDisabled *bool
	cleanJSONLD          *bool
	cleanContextFile     *string
)

func init() {
	cleanIn = cleanCmd.Flags().String("in", "", "Raw input file (as written by extract).")
	cleanOut = cleanCmd.Flags().String("out", "cleaned", "Directory to write cleaned exports to.")
	cleanMode = cleanCmd.Flags().String("mode", "full", "Anonymization mode: full or pseudo.")
	cleanKeyEnv = cleanCmd.Flags().String("key-env", "FABDATA_PSEUDONYM_KEY", "Environment variable holding the pseudonym key.")
	cleanTimestamps = cleanCmd.Flags().String("timestamps", "all", "Timestamp handling: all, only_date or remove.")
	cleanIncludeDisabled = cleanCmd.Flags().Bool("include-disabled", false, "Keep records flagged disabled.")
	cleanJSONLD = cleanCmd.Flags().Bool("jsonld", false, "Write a JSON-LD document instead of plain JSON.")
	cleanContextFile = cleanCmd.Flags().String("context", "", "JSON file with the @context for JSON-LD output.")
	_ = cleanCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(cleanCmd)
}

var cleanCmd = &cobra.Command{
	Use:   "clean <dataset> --in <raw.json> [--mode pseudo] [flags]",
	Short: "Anonymizes and cleans a raw export into a publishable dataset.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataset := args[0]
		entityType, ok := datasets[dataset]
		if !ok {
			fatal("unknown dataset", fmt.Errorf("%q is not one of %v", dataset, datasetNames()))
		}

		cfg, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		mode, err := anonymize.ParseMode(*cleanMode)
		if err != nil {
			fatal("invalid mode", err)
		}
		var key string
		if mode == anonymize.ModePseudo {
			key = os.Getenv(*cleanKeyEnv)
			if key == "" {
				fatal("pseudonym key not set", fmt.Errorf("export %s", *cleanKeyEnv))
			}
		}

		raws, err := readRawRecords(*cleanIn)
		if err != nil {
			fatal("failed to read raw input", err)
		}

		cleaner, err := clean.New(clean.Options{
			EntityType:      entityType,
			Mode:            mode,
			Key:             key,
			Namespace:       cfg.Namespace,
			Timestamps:      redact.TimestampMode(*cleanTimestamps),
			IncludeDisabled: *cleanIncludeDisabled,
		})
		if err != nil {
			fatal("failed to configure cleaner", err)
		}

		startedAt := time.Now()
		cleaned, summary := cleaner.Clean(cmd.Context(), raws)

		var document any
		if *cleanJSONLD {
			context, err := readContext(*cleanContextFile)
			if err != nil {
				fatal("failed to read jsonld context", err)
			}
			document = linkeddata.ToJSONLD(cleaned, context)
		} else {
			metadata := cfg.Provenance.Metadata(startedAt)
			metadata["data_cleaned_at"] = startedAt.Format(time.RFC3339)
			document = linkeddata.ToJSON(
				map[string][]record.Record{dataset: cleaned},
				metadata,
			)
		}

		path, err := export.WriteJSON(*cleanOut, dataset, startedAt, document)
		if err != nil {
			fatal("failed to write output", err)
		}

		recordRun(cmd, cfg, runlog.Run{
			Dataset:    dataset,
			Mode:       string(mode),
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
			Processed:  summary.Processed,
			Skipped:    summary.Skipped,
			OutputPath: path,
		})

		renderSummary(dataset, path, summary)
	},
}

func datasetNames() []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func readRawRecords(path string) ([]record.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []record.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

func readContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var context map[string]any
	if err := json.Unmarshal(raw, &context); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return context, nil
}

func recordRun(cmd *cobra.Command, cfg Config, run runlog.Run) {
	if cfg.Journal == "" {
		return
	}
	journal, err := runlog.Open(cfg.Journal)
	if err != nil {
		fatal("failed to open run journal", err)
	}
	defer journal.Close()

	if err := journal.Record(cmd.Context(), run); err != nil {
		fatal("failed to record run", err)
	}
}

func renderSummary(dataset, path string, summary clean.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Dataset", "Processed", "Skipped", "Filtered", "Output"})
	t.AppendRow(table.Row{dataset, summary.Processed, summary.Skipped, summary.Filtered, path})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(summary.Reasons) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Reason", "Count"})
		for _, reason := range sortedKeys(summary.Reasons) {
			t.AppendRow(table.Row{reason, summary.Reasons[reason]})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	}

	if len(summary.UnknownFields) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Unknown Field", "Count"})
		for _, field := range sortedKeys(summary.UnknownFields) {
			t.AppendRow(table.Row{field, summary.UnknownFields[field]})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
