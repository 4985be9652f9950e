// Package scheduling computes batch duration estimates and fair-share
// priorities. Priority is expressed as a logical end time: each submission
// advances the owner's logical clock by the compute it requests divided by
// the project's aggregate throughput, so heavy users see their future
// submissions pushed later. Batches with earlier logical end times are
// dispatched first by the external scheduler, which approximates
// earliest-eligible-virtual-deadline fair sharing.
package scheduling

import (
	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/pkg/api"
)

type Estimator struct {
	// TotalFlopsRate is the project's estimated aggregate throughput in
	// FLOPS.
	TotalFlopsRate float64
	// DefaultFpopsEst applies when neither the job nor the batch carries
	// an estimate; 0 makes estimates mandatory.
	DefaultFpopsEst float64
}

// JobFpops resolves the compute estimate for one job: job value, then batch
// default, then configured default.
func (e *Estimator) JobFpops(job *api.JobDescription, batch *api.BatchDescription) (float64, error) {
	if job.RscFpopsEst > 0 {
		return job.RscFpopsEst, nil
	}
	if batch.JobParams.RscFpopsEst > 0 {
		return batch.JobParams.RscFpopsEst, nil
	}
	if e.DefaultFpopsEst > 0 {
		return e.DefaultFpopsEst, nil
	}
	return 0, &rpcerrors.ErrMissingEstimate{Job: job.Name}
}

// TotalFpops sums the resolved estimates of every job in the batch.
func (e *Estimator) TotalFpops(batch *api.BatchDescription) (float64, error) {
	var total float64
	for i := range batch.Jobs {
		fpops, err := e.JobFpops(&batch.Jobs[i], batch)
		if err != nil {
			return 0, err
		}
		total += fpops
	}
	return total, nil
}

// EstimateSeconds is the estimated wall-clock duration of the batch given
// the project's aggregate throughput.
func (e *Estimator) EstimateSeconds(batch *api.BatchDescription) (float64, error) {
	total, err := e.TotalFpops(batch)
	if err != nil {
		return 0, err
	}
	if e.TotalFlopsRate <= 0 {
		return 0, nil
	}
	return total / e.TotalFlopsRate, nil
}

// ChargeSeconds is the logical time a submission of totalFpops costs its
// owner. The charge is applied to the account clock inside the submit
// transaction, which starts from the later of the wall clock and the
// committed clock value, so an idle user is charged from now and a
// backlogged user on top of their previous logical end.
func (e *Estimator) ChargeSeconds(totalFpops float64) float64 {
	if e.TotalFlopsRate <= 0 {
		return 0
	}
	return totalFpops / e.TotalFlopsRate
}
