package enqueue

import (
	"context"

	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
)

// RecordingEnqueuer is an in-memory Enqueuer for tests. It records every
// invocation and can be made to fail.
type RecordingEnqueuer struct {
	Invocations []Invocation
	Err         error
}

type Invocation struct {
	AppName string
	BatchID int64
	Jobs    []*repository.Job
}

func (e *RecordingEnqueuer) Enqueue(ctx context.Context, appName string, batchID int64, jobs []*repository.Job) error {
	if e.Err != nil {
		return e.Err
	}
	e.Invocations = append(e.Invocations, Invocation{AppName: appName, BatchID: batchID, Jobs: jobs})
	return nil
}
