package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/pkg/api"
)

type jobRow struct {
	Id                  int64          `db:"id"`
	BatchId             int64          `db:"batch_id"`
	Name                string         `db:"name"`
	CommandLine         sql.NullString `db:"command_line"`
	RscFpopsEst         float64        `db:"rsc_fpops_est"`
	RscFpopsBound       float64        `db:"rsc_fpops_bound"`
	RscMemoryBound      float64        `db:"rsc_memory_bound"`
	RscDiskBound        float64        `db:"rsc_disk_bound"`
	DelayBound          float64        `db:"delay_bound"`
	Priority            int64          `db:"priority"`
	CanonicalInstanceId sql.NullInt64  `db:"canonical_instance_id"`
	ErrorMask           int            `db:"error_mask"`
	InputFiles          sql.NullString `db:"input_files"`
}

func (row *jobRow) toJob() (*Job, error) {
	job := &Job{
		ID:                  row.Id,
		BatchID:             row.BatchId,
		Name:                row.Name,
		CommandLine:         row.CommandLine.String,
		RscFpopsEst:         row.RscFpopsEst,
		RscFpopsBound:       row.RscFpopsBound,
		RscMemoryBound:      row.RscMemoryBound,
		RscDiskBound:        row.RscDiskBound,
		DelayBound:          row.DelayBound,
		Priority:            row.Priority,
		CanonicalInstanceID: row.CanonicalInstanceId.Int64,
		ErrorMask:           row.ErrorMask,
	}
	if row.InputFiles.Valid && row.InputFiles.String != "" {
		if err := json.Unmarshal([]byte(row.InputFiles.String), &job.InputFiles); err != nil {
			return nil, errors.Wrapf(err, "corrupt input_files for job %d", row.Id)
		}
	}
	return job, nil
}

type instanceRow struct {
	Id       int64          `db:"id"`
	JobId    int64          `db:"job_id"`
	Name     string         `db:"name"`
	State    string         `db:"state"`
	CPUTime  float64        `db:"cpu_time"`
	Outfiles sql.NullString `db:"outfiles"`
}

func (row *instanceRow) toInstance() (*JobInstance, error) {
	instance := &JobInstance{
		ID:      row.Id,
		JobID:   row.JobId,
		Name:    row.Name,
		State:   api.InstanceState(row.State),
		CPUTime: row.CPUTime,
	}
	if row.Outfiles.Valid && row.Outfiles.String != "" {
		if err := json.Unmarshal([]byte(row.Outfiles.String), &instance.Outfiles); err != nil {
			return nil, errors.Wrapf(err, "corrupt outfiles for instance %d", row.Id)
		}
	}
	return instance, nil
}

func (r *SQLJobRepository) Get(ctx context.Context, id int64) (*Job, error) {
	return r.getJob(ctx, job_id.Eq(id), fmt.Sprintf("%d", id))
}

func (r *SQLJobRepository) GetByName(ctx context.Context, name string) (*Job, error) {
	return r.getJob(ctx, job_name.Eq(name), name)
}

func (r *SQLJobRepository) getJob(ctx context.Context, where goqu.Expression, key string) (*Job, error) {
	var row jobRow
	found, err := r.db.From(jobTable).Where(where).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "job", Value: key}
	}
	return row.toJob()
}

func (r *SQLJobRepository) ListByBatch(ctx context.Context, batchID int64) ([]*Job, error) {
	rows := make([]jobRow, 0)
	err := r.db.From(jobTable).
		Where(job_batchId.Eq(batchID)).
		Order(job_id.Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	jobs := make([]*Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *SQLJobRepository) GetInstance(ctx context.Context, id int64) (*JobInstance, error) {
	var row instanceRow
	found, err := r.db.From(instanceTable).Where(instance_id.Eq(id)).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "job instance", Value: fmt.Sprintf("%d", id)}
	}
	return row.toInstance()
}

func (r *SQLJobRepository) GetInstanceByName(ctx context.Context, name string) (*JobInstance, error) {
	var row instanceRow
	found, err := r.db.From(instanceTable).Where(instance_name.Eq(name)).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "job instance", Value: name}
	}
	return row.toInstance()
}

func (r *SQLJobRepository) ListInstances(ctx context.Context, jobID int64) ([]*JobInstance, error) {
	rows := make([]instanceRow, 0)
	err := r.db.From(instanceTable).
		Where(instance_jobId.Eq(jobID)).
		Order(instance_id.Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	instances := make([]*JobInstance, 0, len(rows))
	for i := range rows {
		instance, err := rows[i].toInstance()
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (r *SQLJobRepository) BatchCPUTime(ctx context.Context, batchID int64) (float64, error) {
	var total sql.NullFloat64
	_, err := r.db.From(instanceTable).
		Join(jobTable, goqu.On(instance_jobId.Eq(job_id))).
		Where(job_batchId.Eq(batchID)).
		Select(goqu.SUM(goqu.I("job_instance.cpu_time"))).
		Executor().
		ScanValContext(ctx, &total)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return total.Float64, nil
}

// ErrorMaskCancelled marks a job cancelled by an explicit abort; any nonzero
// error mask makes the job terminal.
const ErrorMaskCancelled = 1 << 4

// Abort cancels the given jobs' still-live instances and stamps the jobs'
// error masks. The conditional WHERE on instance state means an instance
// that reached a terminal state just before the abort keeps that state; this
// is the eventual-consistency contract with the external scheduler.
func (r *SQLJobRepository) Abort(ctx context.Context, jobIDs []int64) error {
	if len(jobIDs) == 0 {
		return nil
	}
	_, err := r.db.Update(instanceTable).
		Set(goqu.Record{"state": string(api.InstanceAborted)}).
		Where(goqu.And(
			instance_jobId.In(jobIDs),
			instance_state.In(nonTerminalInstanceStates),
		)).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = r.db.Update(jobTable).
		Set(goqu.Record{"error_mask": goqu.L("error_mask | ?", ErrorMaskCancelled)}).
		Where(goqu.And(
			job_id.In(jobIDs),
			job_canonicalId.IsNull(),
		)).
		Executor().
		ExecContext(ctx)
	return errors.WithStack(err)
}

func (r *SQLJobRepository) MarkRetired(ctx context.Context, batchID int64) error {
	_, err := r.db.Update(instanceTable).
		Set(goqu.Record{"retired": true}).
		Where(instance_jobId.In(
			r.db.From(jobTable).Select(job_id).Where(job_batchId.Eq(batchID)),
		)).
		Executor().
		ExecContext(ctx)
	return errors.WithStack(err)
}
