package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/pkg/api"
)

type batchRow struct {
	Id              int64          `db:"id"`
	AccountId       int64          `db:"account_id"`
	AppId           int64          `db:"app_id"`
	Name            sql.NullString `db:"name"`
	State           string         `db:"state"`
	CreateTime      int64          `db:"create_time"`
	ExpireTime      sql.NullInt64  `db:"expire_time"`
	CompletionTime  sql.NullInt64  `db:"completion_time"`
	NJobs           int            `db:"njobs"`
	FractionDone    float64        `db:"fraction_done"`
	NErrorJobs      int            `db:"nerror_jobs"`
	CreditEstimate  float64        `db:"credit_estimate"`
	CreditCanonical float64        `db:"credit_canonical"`
	LogicalEndTime  float64        `db:"logical_end_time"`
	Description     sql.NullString `db:"description"`
}

func (row *batchRow) toBatch() *Batch {
	return &Batch{
		ID:              row.Id,
		AccountID:       row.AccountId,
		AppID:           row.AppId,
		Name:            row.Name.String,
		State:           api.BatchState(row.State),
		CreateTime:      row.CreateTime,
		ExpireTime:      row.ExpireTime.Int64,
		CompletionTime:  row.CompletionTime.Int64,
		NJobs:           row.NJobs,
		FractionDone:    row.FractionDone,
		NErrorJobs:      row.NErrorJobs,
		CreditEstimate:  row.CreditEstimate,
		CreditCanonical: row.CreditCanonical,
		LogicalEndTime:  row.LogicalEndTime,
		Description:     row.Description.String,
	}
}

func (r *SQLBatchRepository) Create(ctx context.Context, batch *Batch) (int64, error) {
	rec := goqu.Record{
		"account_id":        batch.AccountID,
		"app_id":            batch.AppID,
		"name":              sql.NullString{String: batch.Name, Valid: batch.Name != ""},
		"state":             string(batch.State),
		"create_time":       batch.CreateTime,
		"expire_time":       sql.NullInt64{Int64: batch.ExpireTime, Valid: batch.ExpireTime != 0},
		"njobs":             batch.NJobs,
		"fraction_done":     batch.FractionDone,
		"nerror_jobs":       batch.NErrorJobs,
		"credit_estimate":   batch.CreditEstimate,
		"credit_canonical":  batch.CreditCanonical,
		"logical_end_time":  batch.LogicalEndTime,
		"description":       sql.NullString{String: batch.Description, Valid: batch.Description != ""},
	}
	var id int64
	found, err := r.db.Insert(batchTable).
		Rows(rec).
		Returning(goqu.C("id")).
		Executor().
		ScanValContext(ctx, &id)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if !found {
		return 0, errors.New("insert batch returned no id")
	}
	return id, nil
}

func (r *SQLBatchRepository) Get(ctx context.Context, id int64) (*Batch, error) {
	return r.getBatch(ctx, r.db, batch_id.Eq(id), fmt.Sprintf("%d", id))
}

func (r *SQLBatchRepository) GetByName(ctx context.Context, accountID int64, name string) (*Batch, error) {
	return r.getBatch(ctx, r.db, goqu.And(batch_accountId.Eq(accountID), batch_name.Eq(name)), name)
}

func (r *SQLBatchRepository) getBatch(ctx context.Context, db *goqu.Database, where goqu.Expression, key string) (*Batch, error) {
	var row batchRow
	found, err := db.From(batchTable).Where(where).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "batch", Value: key}
	}
	return row.toBatch(), nil
}

func (r *SQLBatchRepository) ListByAccount(ctx context.Context, accountID int64) ([]*Batch, error) {
	rows := make([]batchRow, 0)
	err := r.db.From(batchTable).
		Where(batch_accountId.Eq(accountID)).
		Order(batch_id.Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	batches := make([]*Batch, 0, len(rows))
	for i := range rows {
		batches = append(batches, rows[i].toBatch())
	}
	return batches, nil
}

func (r *SQLBatchRepository) Update(ctx context.Context, id int64, update BatchUpdate) error {
	if update.Empty() {
		return nil
	}
	_, err := r.db.Update(batchTable).
		Set(update.record()).
		Where(batch_id.Eq(id)).
		Executor().
		ExecContext(ctx)
	return errors.WithStack(err)
}

func (r *SQLBatchRepository) AttachJobs(
	ctx context.Context,
	batchID int64,
	jobs []*Job,
	charge *FairShareCharge,
	enqueue func(jobs []*Job) error,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	err = r.attachJobsTx(ctx, tx, batchID, jobs, charge, enqueue)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.WithStack(tx.Commit())
}

func (r *SQLBatchRepository) attachJobsTx(
	ctx context.Context,
	tx *goqu.TxDatabase,
	batchID int64,
	jobs []*Job,
	charge *FairShareCharge,
	enqueue func(jobs []*Job) error,
) error {
	// Lock the batch row: concurrent submissions into the same batch
	// serialize here, so njobs/state cannot be lost-updated.
	var row batchRow
	found, err := tx.From(batchTable).
		Where(batch_id.Eq(batchID)).
		ForUpdate(exp.Wait).
		ScanStructContext(ctx, &row)
	if err != nil {
		return errors.WithStack(err)
	}
	if !found {
		return &rpcerrors.ErrNotFound{Type: "batch", Value: fmt.Sprintf("%d", batchID)}
	}
	state := api.BatchState(row.State)
	if state != api.BatchInit {
		return &rpcerrors.ErrBadState{BatchID: batchID, State: state, Op: "adding jobs"}
	}

	// Advance the owner's fair-share clock from its committed value, not
	// from whatever the caller read earlier: GREATEST makes concurrent
	// submissions stack their charges. The new clock value is the priority
	// of every fair-share job in this batch.
	var logicalEnd *float64
	if charge != nil {
		var end float64
		found, err := tx.Update(accountTable).
			Set(goqu.Record{
				"logical_end_time": goqu.L("GREATEST(logical_end_time, ?) + ?", charge.NowSec, charge.Seconds),
			}).
			Where(account_id.Eq(row.AccountId)).
			Returning(goqu.C("logical_end_time")).
			Executor().
			ScanValContext(ctx, &end)
		if err != nil {
			return errors.WithStack(err)
		}
		if !found {
			return &rpcerrors.ErrNotFound{Type: "account", Value: fmt.Sprintf("%d", row.AccountId)}
		}
		logicalEnd = &end
		for _, job := range jobs {
			if job.FairSharePriority {
				job.Priority = int64(end)
			}
		}
	}

	for _, job := range jobs {
		inputFiles, err := json.Marshal(job.InputFiles)
		if err != nil {
			return errors.WithStack(err)
		}
		rec := goqu.Record{
			"batch_id":         batchID,
			"name":             job.Name,
			"command_line":     sql.NullString{String: job.CommandLine, Valid: job.CommandLine != ""},
			"rsc_fpops_est":    job.RscFpopsEst,
			"rsc_fpops_bound":  job.RscFpopsBound,
			"rsc_memory_bound": job.RscMemoryBound,
			"rsc_disk_bound":   job.RscDiskBound,
			"delay_bound":      job.DelayBound,
			"priority":         job.Priority,
			"error_mask":       0,
			"input_files":      string(inputFiles),
		}
		var jobID int64
		found, err := tx.Insert(jobTable).
			Rows(rec).
			Returning(goqu.C("id")).
			Executor().
			ScanValContext(ctx, &jobID)
		if err != nil {
			return errors.WithStack(err)
		}
		if !found {
			return errors.New("insert job returned no id")
		}
		job.ID = jobID
		job.BatchID = batchID

		// The initial unsent instance; the external scheduler takes it
		// from here.
		_, err = tx.Insert(instanceTable).
			Rows(goqu.Record{
				"job_id":   jobID,
				"name":     fmt.Sprintf("%s_0", job.Name),
				"state":    string(api.InstanceUnsent),
				"cpu_time": 0.0,
			}).
			Executor().
			ExecContext(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	batchRec := goqu.Record{
		"njobs": row.NJobs + len(jobs),
		"state": string(api.BatchInProgress),
	}
	if logicalEnd != nil {
		batchRec["logical_end_time"] = *logicalEnd
	}
	_, err = tx.Update(batchTable).
		Set(batchRec).
		Where(batch_id.Eq(batchID)).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if enqueue != nil {
		// Enqueue before commit: a failed or timed-out enqueuer rolls
		// everything back and the batch stays INIT.
		if err := enqueue(jobs); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLBatchRepository) CountInFlightJobs(ctx context.Context, accountID int64) (int, error) {
	count, err := r.db.From(jobTable).
		Join(batchTable, goqu.On(job_batchId.Eq(batch_id))).
		Where(goqu.And(
			batch_accountId.Eq(accountID),
			job_canonicalId.IsNull(),
			job_errorMask.Eq(0),
		)).
		CountContext(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(count), nil
}
