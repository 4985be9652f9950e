package repository

import (
	"github.com/doug-martin/goqu/v9"

	"github.com/volgrid/gridsubmit/pkg/api"
)

// BatchUpdate is a partial update of a batch row. Nil fields are left
// untouched; the update is applied through a single parameterized UPDATE.
type BatchUpdate struct {
	State           *api.BatchState
	NJobs           *int
	FractionDone    *float64
	NErrorJobs      *int
	CompletionTime  *int64
	ExpireTime      *int64
	CreditEstimate  *float64
	CreditCanonical *float64
	LogicalEndTime  *float64
}

func (u BatchUpdate) Empty() bool {
	return u.State == nil &&
		u.NJobs == nil &&
		u.FractionDone == nil &&
		u.NErrorJobs == nil &&
		u.CompletionTime == nil &&
		u.ExpireTime == nil &&
		u.CreditEstimate == nil &&
		u.CreditCanonical == nil &&
		u.LogicalEndTime == nil
}

func (u BatchUpdate) record() goqu.Record {
	r := goqu.Record{}
	if u.State != nil {
		r["state"] = string(*u.State)
	}
	if u.NJobs != nil {
		r["njobs"] = *u.NJobs
	}
	if u.FractionDone != nil {
		r["fraction_done"] = *u.FractionDone
	}
	if u.NErrorJobs != nil {
		r["nerror_jobs"] = *u.NErrorJobs
	}
	if u.CompletionTime != nil {
		r["completion_time"] = *u.CompletionTime
	}
	if u.ExpireTime != nil {
		r["expire_time"] = *u.ExpireTime
	}
	if u.CreditEstimate != nil {
		r["credit_estimate"] = *u.CreditEstimate
	}
	if u.CreditCanonical != nil {
		r["credit_canonical"] = *u.CreditCanonical
	}
	if u.LogicalEndTime != nil {
		r["logical_end_time"] = *u.LogicalEndTime
	}
	return r
}
