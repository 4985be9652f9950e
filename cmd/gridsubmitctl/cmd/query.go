package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(queryBatchesCmd)
	rootCmd.AddCommand(queryBatchCmd)
	rootCmd.AddCommand(queryJobCmd)

	queryBatchesCmd.Flags().Bool("cpu-time", false, "include total cpu time per batch")
	queryBatchCmd.Flags().Int64("id", 0, "batch id")
	queryBatchCmd.Flags().String("name", "", "batch name")
	queryBatchCmd.Flags().Bool("details", false, "include per-job instance details")
	queryJobCmd.Flags().Int64("id", 0, "job id")
}

var queryBatchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Lists your batches and their progress",
	Run: func(cmd *cobra.Command, args []string) {
		withCPUTime, _ := cmd.Flags().GetBool("cpu-time")
		ctx, cancel := requestContext()
		defer cancel()
		batches, err := apiClient().QueryBatches(ctx, withCPUTime)
		if err != nil {
			log.Error(err)
			return
		}
		for _, batch := range batches {
			log.Infof("%8d  %-20s  %-12s  %3.0f%%  %d jobs (%d failed)",
				batch.ID, batch.Name, batch.State, batch.FractionDone*100, batch.NJobs, batch.NErrorJobs)
		}
	},
}

var queryBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Shows one batch and its jobs",
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetInt64("id")
		name, _ := cmd.Flags().GetString("name")
		details, _ := cmd.Flags().GetBool("details")
		ctx, cancel := requestContext()
		defer cancel()
		resp, err := apiClient().QueryBatch(ctx, id, name, details)
		if err != nil {
			log.Error(err)
			return
		}
		batch := resp.Batch
		log.Infof("batch %d %q: state %s, %d jobs, %.0f%% done, %d failed",
			batch.ID, batch.Name, batch.State, batch.NJobs, batch.FractionDone*100, batch.NErrorJobs)
		for _, job := range resp.Jobs {
			log.Infof("  job %d %s canonical=%d error_mask=%d", job.ID, job.Name, job.CanonicalInstanceID, job.ErrorMask)
			for _, status := range job.Status {
				log.Infof("    %s", status)
			}
		}
	},
}

var queryJobCmd = &cobra.Command{
	Use:   "job",
	Short: "Shows the instances of one job",
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetInt64("id")
		ctx, cancel := requestContext()
		defer cancel()
		instances, err := apiClient().QueryJob(ctx, id)
		if err != nil {
			log.Error(err)
			return
		}
		for _, instance := range instances {
			log.Infof("%8d  %-30s  %-12s  cpu %.1fs  %d output files",
				instance.ID, instance.Name, instance.State, instance.CPUTime, len(instance.Outfiles))
		}
	},
}
