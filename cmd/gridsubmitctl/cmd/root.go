package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/volgrid/gridsubmit/pkg/client"
)

var rootCmd = &cobra.Command{
	Use:   "gridsubmitctl",
	Short: "gridsubmitctl submits and tracks batches of jobs on the grid.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	client.AddConnectionCommandlineArgs(rootCmd)
}

func apiClient() *client.Client {
	return client.New(client.ExtractCommandlineConnectionDetails())
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Minute)
}
