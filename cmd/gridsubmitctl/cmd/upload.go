package cmd

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().Int64("batch", 0, "batch id to associate the files with")
	uploadCmd.Flags().Int64("delete-time", 0, "unix time after which the server may delete the files")
}

var uploadCmd = &cobra.Command{
	Use:   "upload file...",
	Short: "Stages local files on the server under their content address",
	Long: `Stages local files on the server. Each file is named after its md5
digest; files the server already holds are skipped. Prints the physical name
of each file for use as a local_staged input in a batch description.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		batchID, _ := cmd.Flags().GetInt64("batch")
		deleteTime, _ := cmd.Flags().GetInt64("delete-time")

		physNames := make([]string, 0, len(args))
		for _, path := range args {
			md5sum, err := fileMD5(path)
			if err != nil {
				log.Error(err)
				return
			}
			physNames = append(physNames, "jf_"+md5sum)
		}

		ctx, cancel := requestContext()
		defer cancel()
		c := apiClient()
		absent, err := c.QueryFiles(ctx, batchID, physNames, deleteTime)
		if err != nil {
			log.Error(err)
			return
		}

		uploadNames := make([]string, 0, len(absent))
		uploadFiles := make([]io.Reader, 0, len(absent))
		var open []*os.File
		defer func() {
			for _, f := range open {
				_ = f.Close()
			}
		}()
		for _, i := range absent {
			f, err := os.Open(args[i])
			if err != nil {
				log.Error(err)
				return
			}
			open = append(open, f)
			uploadNames = append(uploadNames, physNames[i])
			uploadFiles = append(uploadFiles, f)
		}
		if len(uploadNames) > 0 {
			if err := c.UploadFiles(ctx, batchID, uploadNames, uploadFiles, deleteTime); err != nil {
				log.Error(err)
				return
			}
		}

		for i, path := range args {
			log.Infof("%s  %s", physNames[i], path)
		}
		log.Infof("Uploaded %d of %d files, %d already staged",
			len(uploadNames), len(args), len(args)-len(uploadNames))
	},
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
