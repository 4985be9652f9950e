// Package enqueue isolates the one process boundary of the submit service:
// handing created jobs to the external scheduler.
package enqueue

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
)

type Enqueuer interface {
	// Enqueue hands a whole batch's jobs to the external scheduler. Called
	// exactly once per submission, inside the submit transaction: an error
	// here rolls the submission back.
	Enqueue(ctx context.Context, appName string, batchID int64, jobs []*repository.Job) error
}

// CommandEnqueuer shells out to the configured enqueue command once per
// batch, writing one line of parameters per job on stdin. The command's
// execution time is bounded so a hung enqueuer fails the submission instead
// of wedging the handler.
type CommandEnqueuer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (e *CommandEnqueuer) Enqueue(ctx context.Context, appName string, batchID int64, jobs []*repository.Job) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := append([]string{}, e.Args...)
	args = append(args, "--appname", appName, "--batch", fmt.Sprintf("%d", batchID), "--stdin")
	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Stdin = strings.NewReader(JobLines(jobs))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Infof("Enqueueing %d jobs for batch %d via %s", len(jobs), batchID, e.Command)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &rpcerrors.ErrEnqueueFailure{Message: "enqueue command timed out", Cause: ctx.Err()}
		}
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = "enqueue command exited with error"
		}
		return &rpcerrors.ErrEnqueueFailure{Message: message, Cause: err}
	}
	return nil
}

// JobLines renders the per-job parameter lines fed to the enqueue command:
// name, resource estimates and bounds, priority, then the physical or remote
// name of each input file.
func JobLines(jobs []*repository.Job) string {
	var b strings.Builder
	for _, job := range jobs {
		fmt.Fprintf(&b, "%s %g %g %g %g %g %d",
			job.Name,
			job.RscFpopsEst,
			job.RscFpopsBound,
			job.RscMemoryBound,
			job.RscDiskBound,
			job.DelayBound,
			job.Priority,
		)
		for _, f := range job.InputFiles {
			if f.URL != "" {
				fmt.Fprintf(&b, " %s", f.URL)
			} else {
				fmt.Fprintf(&b, " %s", f.PhysName)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
