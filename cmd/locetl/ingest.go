package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

func ingestCommand(a *app) *cobra.Command {
	var (
		dryRun  bool
		migrate bool
		output  string
	)
	cmd := &cobra.Command{
		Use:   "ingest job.yaml...",
		Short: "Ingest the files named by one or more job documents",
		Long: `Ingest reads each job document, extracts the LOC zones of its input file and
stores them under the job's campaign, model and simulation. Jobs run in order;
a failing job is reported and the remaining jobs still run.

With --dry-run nothing is written to the database and the zones are printed
as a GeoJSON feature collection.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			ing := a.newIngester(nil)
			if !dryRun {
				store, err := a.openStore(ctx, migrate)
				if err != nil {
					a.logger.Error("failed to open store", "error", err)
					return err
				}
				defer store.Close()
				ing = a.newIngester(store)
			}

			var errs []error
			for _, path := range args {
				job, err := domain.LoadJobFile(path)
				if err != nil {
					a.logger.Error("invalid job", "job", path, "error", err)
					errs = append(errs, err)
					continue
				}
				if dryRun {
					_, err = ing.Preview(ctx, job, out)
				} else {
					_, err = ing.Ingest(ctx, job)
				}
				if err != nil {
					a.logger.Error("ingest failed", "job", path, "error", err)
					errs = append(errs, err)
				}
				if ctx.Err() != nil {
					break
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print zones as GeoJSON instead of storing them")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create the schema and seed the vocabulary first")
	cmd.Flags().StringVarP(&output, "output", "o", "", "GeoJSON destination for --dry-run (default stdout)")
	return cmd
}
