// Package server implements the remote batch submission RPC surface: batch
// and job bookkeeping, input file staging, the handoff to the external
// enqueuer, and retrieval of completed job output.
package server

import (
	"github.com/volgrid/gridsubmit/internal/common/util"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/enqueue"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/filestore"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/metrics"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/scheduling"
)

type SubmitServer struct {
	accounts  repository.AccountRepository
	apps      repository.AppRepository
	batches   repository.BatchRepository
	jobs      repository.JobRepository
	files     repository.FileRepository
	store     *filestore.Store
	outputs   *filestore.Store
	enqueuer  enqueue.Enqueuer
	estimator *scheduling.Estimator
	metrics   *metrics.Metrics
	clock     util.Clock

	// Directory holding per-app template files named <app>_in / <app>_out.
	templateDir string
	// Root of per-account sandbox directories; empty disables sandbox
	// input files.
	sandboxDir string
}

func NewSubmitServer(
	accounts repository.AccountRepository,
	apps repository.AppRepository,
	batches repository.BatchRepository,
	jobs repository.JobRepository,
	files repository.FileRepository,
	store *filestore.Store,
	outputs *filestore.Store,
	enqueuer enqueue.Enqueuer,
	estimator *scheduling.Estimator,
	m *metrics.Metrics,
	clock util.Clock,
	templateDir string,
	sandboxDir string,
) *SubmitServer {
	return &SubmitServer{
		accounts:  accounts,
		apps:      apps,
		batches:   batches,
		jobs:      jobs,
		files:     files,
		store:     store,
		outputs:   outputs,
		enqueuer:  enqueuer,
		estimator: estimator,
		metrics:   m,
		clock:     clock,

		templateDir: templateDir,
		sandboxDir:  sandboxDir,
	}
}
