package enqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
)

func TestJobLines(t *testing.T) {
	jobs := []*repository.Job{
		{
			Name:           "job-a",
			RscFpopsEst:    1e9,
			RscFpopsBound:  1e10,
			RscMemoryBound: 5e8,
			RscDiskBound:   1e8,
			DelayBound:     86400,
			Priority:       12,
			InputFiles: []repository.JobInputFile{
				{PhysName: "jf_abc"},
				{URL: "http://example.com/input.dat"},
			},
		},
		{Name: "job-b", Priority: 3},
	}

	lines := JobLines(jobs)
	assert.Equal(t,
		"job-a 1e+09 1e+10 5e+08 1e+08 86400 12 jf_abc http://example.com/input.dat\n"+
			"job-b 0 0 0 0 0 3\n",
		lines)
}

func TestCommandEnqueuer(t *testing.T) {
	e := &CommandEnqueuer{Command: "true", Timeout: 10 * time.Second}
	err := e.Enqueue(context.Background(), "app", 1, []*repository.Job{{Name: "j"}})
	require.NoError(t, err)
}

func TestCommandEnqueuer_Failure(t *testing.T) {
	e := &CommandEnqueuer{Command: "false", Timeout: 10 * time.Second}
	err := e.Enqueue(context.Background(), "app", 1, []*repository.Job{{Name: "j"}})
	var enqueueErr *rpcerrors.ErrEnqueueFailure
	require.ErrorAs(t, err, &enqueueErr)
}

func TestCommandEnqueuer_Timeout(t *testing.T) {
	e := &CommandEnqueuer{Command: "sleep", Args: []string{"10"}, Timeout: 50 * time.Millisecond}
	err := e.Enqueue(context.Background(), "app", 1, nil)
	var enqueueErr *rpcerrors.ErrEnqueueFailure
	require.ErrorAs(t, err, &enqueueErr)
}
