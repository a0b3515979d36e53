package main

import (
	"github.com/spf13/cobra"

	kafkaadapter "github.com/intecmar/cop-loc-etl/internal/adapter/kafka"
	"github.com/intecmar/cop-loc-etl/internal/domain"
)

func submitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "submit job.yaml...",
		Short: "Queue job documents on the job topic for a worker",
		Long: `Submit validates each job document and publishes it to KAFKA_JOB_TOPIC. Input
paths are sent as given, so they must be readable by the worker.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := make([]domain.Job, 0, len(args))
			for _, path := range args {
				job, err := domain.LoadJobFile(path)
				if err != nil {
					a.logger.Error("invalid job", "job", path, "error", err)
					return err
				}
				jobs = append(jobs, job)
			}

			writer := kafkaadapter.NewWriter(a.cfg, a.logger)
			defer writer.Close()
			return writer.Submit(cmd.Context(), jobs)
		},
	}
}
