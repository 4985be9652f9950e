package server

import (
	"context"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
)

// authorize checks that the account may submit to the app: either a blanket
// grant or a per-app grant. Consulted at the top of every mutating
// operation; read-only queries check ownership only.
func (s *SubmitServer) authorize(ctx context.Context, account *repository.Account, app *repository.App) error {
	grant, err := s.accounts.GetGrant(ctx, account.ID)
	if err != nil {
		return err
	}
	if grant == nil {
		return &rpcerrors.ErrNoPermission{Account: account.Name}
	}
	if grant.SubmitAll {
		return nil
	}
	for _, id := range grant.AppIDs {
		if id == app.ID {
			return nil
		}
	}
	return &rpcerrors.ErrNoPermission{Account: account.Name, App: app.Name}
}

// checkQuota rejects a submission that would push the account past its
// in-flight job limit. A limit of 0 means unlimited.
func (s *SubmitServer) checkQuota(ctx context.Context, account *repository.Account, incoming int) error {
	grant, err := s.accounts.GetGrant(ctx, account.ID)
	if err != nil {
		return err
	}
	if grant == nil || grant.MaxJobsInFlight == 0 {
		return nil
	}
	inFlight, err := s.batches.CountInFlightJobs(ctx, account.ID)
	if err != nil {
		return err
	}
	if inFlight+incoming > grant.MaxJobsInFlight {
		return &rpcerrors.ErrQuotaExceeded{
			Limit:    grant.MaxJobsInFlight,
			InFlight: inFlight,
			Incoming: incoming,
		}
	}
	return nil
}

// requireOwner gates every batch mutation and query on the creating account.
func requireOwner(batch *repository.Batch, account *repository.Account) error {
	if batch.AccountID != account.ID {
		return &rpcerrors.ErrAuth{Message: "not the owner of this batch"}
	}
	return nil
}
