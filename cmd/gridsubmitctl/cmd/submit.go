package cmd

import (
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/volgrid/gridsubmit/pkg/api"
)

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(estimateCmd)
}

var submitCmd = &cobra.Command{
	Use:   "submit batch-file",
	Short: "Submits a batch of jobs",
	Long:  `Submits the batch described by the given JSON file. Prints the id of the created batch.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		batch, err := loadBatchDescription(args[0])
		if err != nil {
			log.Error(err)
			return
		}
		ctx, cancel := requestContext()
		defer cancel()
		batchID, err := apiClient().SubmitBatch(ctx, batch)
		if err != nil {
			log.Error(err)
			return
		}
		log.Infof("Submitted batch %d", batchID)
	},
}

var estimateCmd = &cobra.Command{
	Use:   "estimate batch-file",
	Short: "Estimates how long a batch would take to complete",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		batch, err := loadBatchDescription(args[0])
		if err != nil {
			log.Error(err)
			return
		}
		ctx, cancel := requestContext()
		defer cancel()
		seconds, err := apiClient().EstimateBatch(ctx, batch)
		if err != nil {
			log.Error(err)
			return
		}
		log.Infof("Estimated completion in %.0f seconds", seconds)
	},
}

func loadBatchDescription(path string) (*api.BatchDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch api.BatchDescription
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}
