package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
)

type accountRow struct {
	Id             int64          `db:"id"`
	Name           sql.NullString `db:"name"`
	Authenticator  string         `db:"authenticator"`
	LogicalEndTime float64        `db:"logical_end_time"`
}

type grantRow struct {
	AccountId       int64 `db:"account_id"`
	SubmitAll       bool  `db:"submit_all"`
	MaxJobsInFlight int   `db:"max_jobs_in_flight"`
}

func (row *accountRow) toAccount() *Account {
	return &Account{
		ID:             row.Id,
		Name:           row.Name.String,
		Authenticator:  row.Authenticator,
		LogicalEndTime: row.LogicalEndTime,
	}
}

func (r *SQLAccountRepository) Get(ctx context.Context, id int64) (*Account, error) {
	var row accountRow
	found, err := r.db.From(accountTable).
		Where(account_id.Eq(id)).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "account", Value: fmt.Sprintf("%d", id)}
	}
	return row.toAccount(), nil
}

func (r *SQLAccountRepository) GetByAuthenticator(ctx context.Context, authenticator string) (*Account, error) {
	var row accountRow
	found, err := r.db.From(accountTable).
		Where(account_authenticator.Eq(authenticator)).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrAuth{}
	}
	return row.toAccount(), nil
}

func (r *SQLAccountRepository) GetGrant(ctx context.Context, accountID int64) (*SubmitGrant, error) {
	var row grantRow
	found, err := r.db.From(grantTable).
		Where(grant_accountId.Eq(accountID)).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, nil
	}
	grant := &SubmitGrant{
		AccountID:       row.AccountId,
		SubmitAll:       row.SubmitAll,
		MaxJobsInFlight: row.MaxJobsInFlight,
	}
	if !grant.SubmitAll {
		var appIds []int64
		err = r.db.From(grantAppTable).
			Select(goqu.C("app_id")).
			Where(grantApp_accountId.Eq(accountID)).
			ScanValsContext(ctx, &appIds)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		grant.AppIDs = appIds
	}
	return grant, nil
}
