package cmd

import (
	"context"
	"log/slog"
	"time"

	"fablab-opendata/lib/export"
	"fablab-opendata/lib/fabmanager"
	"fablab-opendata/pipeline/record"

	"github.com/spf13/cobra"
)

var (
	extractOut      *string
	extractEntities *[]string
)

func init() {
	extractOut = extractCmd.Flags().String("out", "raw", "Directory to write raw exports to.")
	extractEntities = extractCmd.Flags().StringSlice(
		"entities",
		[]string{"users", "machines", "trainings", "reservations"},
		"Entities to extract.",
	)
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [--out <dir>] [--entities users,machines,...]",
	Short: "Extracts raw records from a FabManager instance.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		token, err := cfg.token()
		if err != nil {
			fatal("failed to read api token", err)
		}

		client, err := fabmanager.New(fabmanager.Config{
			BaseURL:          cfg.BaseURL,
			Token:            token,
			CloudflareBypass: cfg.CloudflareBypass,
		})
		if err != nil {
			fatal("failed to create client", err)
		}

		ctx := cmd.Context()
		if err := client.TestConnection(ctx); err != nil {
			fatal("connection check failed", err)
		}

		fetchers := map[string]func(context.Context) ([]record.Record, error){
			"users":        client.Users,
			"machines":     client.Machines,
			"trainings":    client.Trainings,
			"reservations": client.Reservations,
		}

		now := time.Now()
		for _, entity := range *extractEntities {
			fetch, ok := fetchers[entity]
			if !ok {
				slog.Warn("unknown entity, skipping", "entity", entity)
				continue
			}

			t1 := time.Now()
			records, err := fetch(ctx)
			if err != nil {
				fatal("failed to fetch "+entity, err)
			}

			path, err := export.WriteJSON(*extractOut, entity, now, records)
			if err != nil {
				fatal("failed to write "+entity, err)
			}
			slog.Info(
				"extracted entity",
				"entity", entity,
				"records", len(records),
				"path", path,
				"seconds", time.Since(t1).Seconds(),
			)
		}
	},
}
