package server

import (
	"context"

	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

// recomputeBatchParameters derives a batch's aggregate progress from its
// jobs: estimate-weighted fraction done, error count, and the transition to
// COMPLETE once every job is terminal. Job completion is written by an
// external scheduler this service does not control, so this runs lazily on
// every read; it is pure and idempotent, returning an empty update when
// nothing changed.
func recomputeBatchParameters(batch *repository.Batch, jobs []*repository.Job, now int64) repository.BatchUpdate {
	update := repository.BatchUpdate{}
	if batch.State.Rank() >= api.BatchComplete.Rank() {
		return update
	}

	var totalEst, doneEst float64
	nError := 0
	allTerminal := true
	for _, job := range jobs {
		totalEst += job.RscFpopsEst
		if job.CanonicalInstanceID != 0 {
			doneEst += job.RscFpopsEst
		}
		if job.ErrorMask != 0 {
			nError++
		}
		if !job.Terminal() {
			allTerminal = false
		}
	}

	fractionDone := 0.0
	if totalEst > 0 {
		fractionDone = doneEst / totalEst
	}
	// fraction_done never decreases while the batch is live.
	if fractionDone < batch.FractionDone {
		fractionDone = batch.FractionDone
	}
	if fractionDone != batch.FractionDone {
		update.FractionDone = &fractionDone
	}
	if nError != batch.NErrorJobs {
		update.NErrorJobs = &nError
	}

	// An errored job counts toward nerror_jobs but does not by itself end
	// the batch; COMPLETE requires every job to be terminal. A batch with
	// zero jobs completes immediately.
	if batch.State == api.BatchInProgress && allTerminal {
		state := api.BatchComplete
		update.State = &state
		update.CompletionTime = &now
	}
	return update
}

// refreshBatch recomputes and persists a batch's derived parameters before
// it is returned to a caller. Batches at or past COMPLETE are returned as
// stored.
func (s *SubmitServer) refreshBatch(ctx context.Context, batch *repository.Batch) (*repository.Batch, error) {
	if batch.State.Rank() >= api.BatchComplete.Rank() {
		return batch, nil
	}
	jobs, err := s.jobs.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	update := recomputeBatchParameters(batch, jobs, s.clock.Now().Unix())
	if update.Empty() {
		return batch, nil
	}
	if err := s.batches.Update(ctx, batch.ID, update); err != nil {
		return nil, err
	}
	if update.FractionDone != nil {
		batch.FractionDone = *update.FractionDone
	}
	if update.NErrorJobs != nil {
		batch.NErrorJobs = *update.NErrorJobs
	}
	if update.State != nil {
		batch.State = *update.State
	}
	if update.CompletionTime != nil {
		batch.CompletionTime = *update.CompletionTime
	}
	return batch, nil
}
