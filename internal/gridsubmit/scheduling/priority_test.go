package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/pkg/api"
)

func TestJobFpops(t *testing.T) {
	e := &Estimator{DefaultFpopsEst: 5e8}

	batch := &api.BatchDescription{JobParams: api.JobParams{RscFpopsEst: 2e9}}

	// Job value wins over batch default.
	fpops, err := e.JobFpops(&api.JobDescription{RscFpopsEst: 3e9}, batch)
	require.NoError(t, err)
	assert.Equal(t, 3e9, fpops)

	// Batch default next.
	fpops, err = e.JobFpops(&api.JobDescription{}, batch)
	require.NoError(t, err)
	assert.Equal(t, 2e9, fpops)

	// Configured default last.
	fpops, err = e.JobFpops(&api.JobDescription{}, &api.BatchDescription{})
	require.NoError(t, err)
	assert.Equal(t, 5e8, fpops)

	// No default configured makes estimates mandatory.
	strict := &Estimator{}
	_, err = strict.JobFpops(&api.JobDescription{Name: "j1"}, &api.BatchDescription{})
	var missing *rpcerrors.ErrMissingEstimate
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "j1", missing.Job)
}

func TestEstimateSeconds(t *testing.T) {
	e := &Estimator{TotalFlopsRate: 2e9}

	batch := &api.BatchDescription{
		JobParams: api.JobParams{RscFpopsEst: 1e9},
		Jobs:      []api.JobDescription{{}, {}, {}, {}},
	}
	seconds, err := e.EstimateSeconds(batch)
	require.NoError(t, err)
	assert.Equal(t, 2.0, seconds)

	// An unknown aggregate rate gives no estimate rather than dividing by
	// zero.
	unknown := &Estimator{}
	seconds, err = unknown.EstimateSeconds(&api.BatchDescription{
		JobParams: api.JobParams{RscFpopsEst: 1e9},
		Jobs:      []api.JobDescription{{}},
	})
	require.NoError(t, err)
	assert.Zero(t, seconds)
}

func TestChargeSeconds(t *testing.T) {
	e := &Estimator{TotalFlopsRate: 1e9}
	assert.Equal(t, 10.0, e.ChargeSeconds(1e10))

	// No aggregate rate means no charge rather than dividing by zero.
	unknown := &Estimator{}
	assert.Zero(t, unknown.ChargeSeconds(1e10))
}
