package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(abortJobsCmd)
	rootCmd.AddCommand(retireCmd)

	abortCmd.Flags().Int64("id", 0, "batch id")
	abortCmd.Flags().String("name", "", "batch name")
	retireCmd.Flags().Int64("id", 0, "batch id")
	retireCmd.Flags().String("name", "", "batch name")
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Aborts a batch, cancelling all of its unfinished jobs",
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetInt64("id")
		name, _ := cmd.Flags().GetString("name")
		ctx, cancel := requestContext()
		defer cancel()
		if err := apiClient().AbortBatch(ctx, id, name); err != nil {
			log.Error(err)
			return
		}
		log.Info("Batch aborted")
	},
}

var abortJobsCmd = &cobra.Command{
	Use:   "abort-jobs job-name...",
	Short: "Aborts individual jobs by name",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := requestContext()
		defer cancel()
		if err := apiClient().AbortJobs(ctx, args); err != nil {
			log.Error(err)
			return
		}
		log.Info("Jobs aborted")
	},
}

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Retires a batch, allowing its files to be cleaned up",
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetInt64("id")
		name, _ := cmd.Flags().GetString("name")
		ctx, cancel := requestContext()
		defer cancel()
		if err := apiClient().RetireBatch(ctx, id, name); err != nil {
			log.Error(err)
			return
		}
		log.Info("Batch retired")
	},
}
